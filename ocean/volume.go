package ocean

// FlatVolumeLayer wraps a FlatBoundary with an interface ID so it
// satisfies waveq3d.VolumeLayer, modeling a horizontal scattering layer
// such as a deep scattering layer at a fixed depth.
type FlatVolumeLayer struct {
	*FlatBoundary
	id string
}

// NewFlatVolumeLayer builds a FlatVolumeLayer at depthM meters, identified
// by id among its peer volume layers.
func NewFlatVolumeLayer(id string, depthM float64, loss ReflectLossModel) *FlatVolumeLayer {
	return &FlatVolumeLayer{FlatBoundary: NewFlatBottom(depthM, loss), id: id}
}

// InterfaceID identifies this layer among its peers.
func (v *FlatVolumeLayer) InterfaceID() string { return v.id }

// GriddedVolumeLayer wraps a GriddedBoundary with an interface ID so it
// satisfies waveq3d.VolumeLayer, modeling a scattering layer whose depth
// varies with position (e.g. a migrating deep scattering layer).
type GriddedVolumeLayer struct {
	*GriddedBoundary
	id string
}

// NewGriddedVolumeLayer builds a GriddedVolumeLayer from an existing
// GriddedBoundary, identified by id among its peer volume layers.
func NewGriddedVolumeLayer(id string, boundary *GriddedBoundary) *GriddedVolumeLayer {
	return &GriddedVolumeLayer{GriddedBoundary: boundary, id: id}
}

// InterfaceID identifies this layer among its peers.
func (v *GriddedVolumeLayer) InterfaceID() string { return v.id }

package result

// LocalDetection is a single object found by a detector in one tile, with its
// box in tile-pixel coordinates
type LocalDetection struct {
	// Class is the line number in the labels file the Model was trained on
	// defining the Class of the detected object
	Class int
	// Box are the bounding box dimensions of the object location within the
	// tile
	Box BoxRect
	// Probability is the confidence score of the object detected
	Probability float32
}

// TileOffset locates a tile within the source image
type TileOffset struct {
	ID int
	X  int
	Y  int
}

// GlobalDetection is a LocalDetection remapped into the coordinates of the
// full source image.  Several GlobalDetections may describe the same physical
// object when it lies within the overlap of neighbouring tiles
type GlobalDetection struct {
	// ID is a unique, increasing ID assigned in the order detections were
	// collected
	ID          int64
	Class       int
	Box         BoxRect
	Probability float32
	// TileID is the ID of the tile the detection was made in
	TileID int
}

// MergedDetection is the final deduplicated detection of one physical object
type MergedDetection struct {
	Class       int
	Box         BoxRect
	Probability float32
	// TileID is the tile the cluster seed came from
	TileID int
	// Members is the number of GlobalDetections merged into this one
	Members int
}

// Global converts the merged detection back into a GlobalDetection so it can
// be fed through another merge pass
func (m MergedDetection) Global(id int64) GlobalDetection {
	return GlobalDetection{
		ID:          id,
		Class:       m.Class,
		Box:         m.Box,
		Probability: m.Probability,
		TileID:      m.TileID,
	}
}

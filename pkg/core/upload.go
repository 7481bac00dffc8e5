package core

// UploadMetadata is the summary posted alongside a replay file to the web
// frontend.
type UploadMetadata struct {
	Score      int
	FinalStage int
	Frames     int
	Duration   float64
}

// UploadMetadataFor summarises a document for upload.
func UploadMetadataFor(doc Document) UploadMetadata {
	return UploadMetadata{
		Score:      doc.Score,
		FinalStage: doc.FinalStage,
		Frames:     doc.Statistics.TotalFrames,
		Duration:   doc.Statistics.PlayDuration,
	}
}

package types

// Region is an axis-aligned pixel rectangle around a detected face.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// FaceRecord matches one entry of the JSON list returned by the Python worker.
type FaceRecord struct {
	Region  Region `json:"region"`
	Gender  string `json:"dominant_gender"`
	Emotion string `json:"dominant_emotion"`
}

// Label is the text drawn above the face box.
func (f FaceRecord) Label() string {
	return f.Gender + " - " + f.Emotion
}

// AnalysisResult is the ordered output of one analyzer call.
// It is either a complete list or empty, never partially filled.
type AnalysisResult []FaceRecord

// Empty is the result used before the first analysis and after a failed one.
func Empty() AnalysisResult {
	return AnalysisResult{}
}

// ErrorResult captures the error object returned by Python on failure
type ErrorResult struct {
	Error string `json:"error"`
}

package data

import "github.com/khaledhikmat/proctor-go/model"

type IService interface {
	StoreReport(report model.Report) error
	RetrieveReports(sessionID string) ([]model.Report, error)

	NewError(err interface{}) error
	NewSessionStats(stats model.SessionStats) error
	NewFramerStats(stats model.FramerStats) error
	NewListenerStats(stats model.ListenerStats) error
	NewStreamerStats(stats model.StreamerStats) error
	NewAlerterStats(stats model.AlerterStats) error

	Close() error
}

// errorRecord is the persisted shape of an error pushed on an error stream.
type errorRecord struct {
	Timestamp  int64                  `json:"timestamp"`
	Processor  string                 `json:"processor"`
	Inner      string                 `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func toErrorRecord(err interface{}, now int64) errorRecord {
	// Determine if the error is custom
	var customErr model.CustomError
	switch e := err.(type) {
	case model.CustomError:
		customErr = e
	case error:
		customErr.Processor = "N/A"
		customErr.Inner = e
		customErr.Message = e.Error()
		customErr.StackTrace = "N/A"
	default:
		customErr.Processor = "N/A"
		customErr.Message = "unknown error value"
		customErr.StackTrace = "N/A"
	}

	rec := errorRecord{
		Timestamp:  now,
		Processor:  customErr.Processor,
		Message:    customErr.Message,
		StackTrace: customErr.StackTrace,
		Misc:       customErr.Misc,
	}
	if customErr.Inner != nil {
		rec.Inner = customErr.Inner.Error()
	}
	return rec
}

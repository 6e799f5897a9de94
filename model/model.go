package model

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/khaledhikmat/proctor-go/proctor"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// Video source kinds
const (
	VideoWebcam = "webcam"
	VideoFile   = "file"
	VideoRandom = "random"
)

// Audio source kinds
const (
	AudioFFmpeg = "ffmpeg"
	AudioWAV    = "wav"
	AudioNone   = "none"
)

// Candidate is the exam-taker being proctored and the capture devices
// assigned to them.
type Candidate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	VideoSource string `json:"videoSource"` // webcam, file or random
	VideoURL    string `json:"videoUrl"`    // device index, path or URL
	AudioSource string `json:"audioSource"` // ffmpeg, wav or none
	AudioURL    string `json:"audioUrl"`    // ffmpeg input or wav path
}

// ReportTimeLayout is how event timestamps appear in stored reports.
const ReportTimeLayout = "2006-01-02 15:04:05"

type ReportEvent struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
}

// Report is what the exam submission hands to the report renderer.
type Report struct {
	SessionID   string         `json:"sessionId"`
	Candidate   Candidate      `json:"candidate"`
	StartedAt   time.Time      `json:"startedAt"`
	SubmittedAt time.Time      `json:"submittedAt"`
	Final       bool           `json:"final"` // produced at session end rather than on submit
	Events      []ReportEvent  `json:"events"`
	Counts      map[string]int `json:"counts"`
}

func NewReport(sessionID string, candidate Candidate, startedAt, submittedAt time.Time, events []proctor.CheatingEvent) Report {
	r := Report{
		SessionID:   sessionID,
		Candidate:   candidate,
		StartedAt:   startedAt,
		SubmittedAt: submittedAt,
		Events:      make([]ReportEvent, 0, len(events)),
		Counts:      map[string]int{},
	}
	for _, e := range events {
		r.Events = append(r.Events, ReportEvent{
			Timestamp: e.Timestamp.Format(ReportTimeLayout),
			Type:      e.Category.String(),
		})
	}
	for c, n := range proctor.CountByCategory(events) {
		r.Counts[c.String()] = n
	}
	return r
}

type AlerterStats struct {
	Name      string `json:"name"`
	Session   string `json:"session"`
	Alerts    int    `json:"alerts"`
	Throttled int    `json:"throttled"`
	Errors    int    `json:"errors"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}

type StreamerStats struct {
	Name        string  `json:"name"`
	Worker      int     `json:"worker"`
	Session     string  `json:"session"`
	FPS         int     `json:"fps"`
	Frames      int     `json:"frames"`
	Errors      int     `json:"errors"`
	Timeouts    int     `json:"timeouts"`
	Events      int     `json:"events"`
	Uptime      int64   `json:"uptime"`
	AvgProcTime float64 `json:"avgProcTime"`
	Timestamp   int64   `json:"timestamp"`
}

type FramerStats struct {
	Name          string `json:"name"`
	Session       string `json:"session"`
	FPS           int    `json:"fps"`
	Frames        int    `json:"frames"`
	SkippedFrames int    `json:"skippedFrames"`
	Errors        int    `json:"errors"`
	Uptime        int64  `json:"uptime"`
	Timestamp     int64  `json:"timestamp"`
}

type ListenerStats struct {
	Name         string `json:"name"`
	Session      string `json:"session"`
	Chunks       int    `json:"chunks"`
	ActiveChunks int    `json:"activeChunks"`
	Errors       int    `json:"errors"`
	MicAvailable bool   `json:"micAvailable"`
	Uptime       int64  `json:"uptime"`
	Timestamp    int64  `json:"timestamp"`
}

type SessionStats struct {
	ID        string `json:"id"`
	Candidate string `json:"candidate"`
	Events    int    `json:"events"`
	Reports   int    `json:"reports"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}

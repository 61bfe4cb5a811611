package domain

import "time"

const (
	//QueueName definition queue name
	QueueName = "transcode"
)

// TranscodeMessage 定義轉碼工作訊息
type TranscodeMessage struct {
	EpisodeID  string `json:"episodeId"`
	SourcePath string `json:"sourcePath"`
	OutputDir  string `json:"outputDir"`
}

// Request convert queue message to orchestrator request
func (m TranscodeMessage) Request() JobRequest {
	return JobRequest{
		JobID:      m.EpisodeID,
		SourcePath: m.SourcePath,
		OutputDir:  m.OutputDir,
	}
}

// NewTranscodeMessage build message from request
func NewTranscodeMessage(req JobRequest) TranscodeMessage {
	return TranscodeMessage{
		EpisodeID:  req.JobID,
		SourcePath: req.SourcePath,
		OutputDir:  req.OutputDir,
	}
}

// StatusEvent 狀態變更事件 (kafka / websocket)
type StatusEvent struct {
	EventID   string       `json:"eventId"`
	EpisodeID string       `json:"episodeId"`
	Update    StatusUpdate `json:"update"`
	At        time.Time    `json:"at"`
}

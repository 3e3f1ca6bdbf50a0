/*
Copyright 2024 The ENCODE DCC Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// SlackNotifier posts run-start/run-finish messages and uploads the output
// and error reports to a fixed channel, grounded on the teacher's minimal
// CallMethod-style Slack client (no SDK dependency, same as the original
// tool's use of a bot token against the Web API).
type SlackNotifier struct {
	BotToken string
	Channel  string
	client   http.Client

	// postMessageURL and uploadFileURL default to the real Slack Web API
	// endpoints; tests override them to point at a local server.
	postMessageURL string
	uploadFileURL  string
}

// NewSlackNotifier constructs a notifier posting to the given channel
// (e.g. "#bot-reporting", the original tool's fixed destination).
func NewSlackNotifier(botToken, channel string) *SlackNotifier {
	return &SlackNotifier{
		BotToken:       botToken,
		Channel:        channel,
		postMessageURL: "https://slack.com/api/chat.postMessage",
		uploadFileURL:  "https://slack.com/api/files.upload",
	}
}

// PostMessage sends a plain text message via chat.postMessage.
func (s *SlackNotifier) PostMessage(text string) error {
	body, err := json.Marshal(map[string]interface{}{
		"channel": s.Channel,
		"text":    text,
		"as_user": true,
	})
	if err != nil {
		return err
	}
	return s.call(s.postMessageURL, "application/json", bytes.NewReader(body))
}

// UploadFile uploads content as a named file attachment via files.upload.
func (s *SlackNotifier) UploadFile(title, content string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("channels", s.Channel)
	_ = w.WriteField("title", title)
	_ = w.WriteField("content", content)
	if err := w.Close(); err != nil {
		return err
	}
	return s.call(s.uploadFileURL, w.FormDataContentType(), &buf)
}

func (s *SlackNotifier) call(url, contentType string, body io.Reader) error {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.BotToken)
	req.Header.Set("Content-Type", contentType)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to POST message to Slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sending message to Slack failed: %s", resp.Status)
	}
	return nil
}

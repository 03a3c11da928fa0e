package engine

import (
	"fmt"
	"strings"

	"tether/internal/protocol"
)

// UploadCoordinator tracks in-flight and accepted uploads and composes the
// outbound messages that reference them. Uploaded bytes are sent once; later
// queries only mention the filenames so the backend knows what is available
// in its workspace.
type UploadCoordinator struct {
	log     *ConversationLog
	session *Session
}

// NewUploadCoordinator wires a coordinator to the conversation log and
// session state.
func NewUploadCoordinator(log *ConversationLog, session *Session) *UploadCoordinator {
	return &UploadCoordinator{log: log, session: session}
}

// Submit records the attachments optimistically in the conversation history
// and returns the upload_file message to send. The entry appears immediately
// regardless of whether the send later succeeds; upload_success only
// confirms workspace acceptance.
func (c *UploadCoordinator) Submit(files []protocol.FilePayload) protocol.Message {
	atts := make([]Attachment, 0, len(files))
	for _, f := range files {
		atts = append(atts, Attachment{Name: f.Path, Content: f.Content})
	}
	c.log.Append(ConversationEntry{Role: RoleUser, Attachments: atts})
	c.session.UpdateUploads(func(reg *UploadRegistry) { reg.Pending += len(files) })
	c.session.UpdateFlags(func(f *Flags) { f.Uploading = true })
	return protocol.UploadFileMessage(files)
}

// SubmitFailed rolls back the counters from a Submit whose upload message
// never reached the server. The optimistic history entry stays; the files
// were simply not sent. The uploading flag clears once nothing is pending.
func (c *UploadCoordinator) SubmitFailed(n int) {
	c.session.UpdateUploads(func(reg *UploadRegistry) { reg.Pending -= n })
	if c.session.Uploads().Pending == 0 {
		c.session.UpdateFlags(func(f *Flags) { f.Uploading = false })
	}
}

// ComposeQuery records the user's text as a conversation entry and returns
// the query message. The wire text is augmented with a note listing
// previously uploaded filenames; the history entry keeps the clean text.
// Resume is false only on the first turn of the session.
func (c *UploadCoordinator) ComposeQuery(text string) protocol.Message {
	c.log.Append(ConversationEntry{Role: RoleUser, Content: text})
	turn := c.session.BumpTurns()

	wireText := text
	if note := uploadedFilesNote(c.session.Uploads().Completed); note != "" {
		wireText += note
	}
	return protocol.QueryMessage(wireText, turn > 1)
}

// uploadedFilesNote builds the deterministic note appended to a query when
// uploads have been accepted. Duplicate names collapse to one mention.
func uploadedFilesNote(completed []string) string {
	if len(completed) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(completed))
	names := make([]string, 0, len(completed))
	for _, name := range completed {
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return fmt.Sprintf("\n\n(Files already uploaded to the workspace: %s)", strings.Join(names, ", "))
}

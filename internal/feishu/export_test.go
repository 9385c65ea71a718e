package feishu

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportExtension(t *testing.T) {
	assert.Equal(t, "docx", ExportExtension(FileTypeDoc))
	assert.Equal(t, "docx", ExportExtension(FileTypeDocx))
	assert.Equal(t, "xlsx", ExportExtension(FileTypeSheet))
	assert.Equal(t, "xlsx", ExportExtension(FileTypeBitable))
	assert.Equal(t, "pdf", ExportExtension(FileTypeMindnote))
	assert.Equal(t, "pdf", ExportExtension("something-new"))
}

func TestCreateExportJob(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/drive/v1/export_tasks", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req exportJobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "d1", req.Token)
		assert.Equal(t, "sheet", req.FileType)
		assert.Equal(t, "xlsx", req.FileExtension)
		writeEnvelope(w, exportJobCreated{Ticket: "ticket-1"})
	})

	c, _, _ := newTestClient(t, mux)

	ticket, err := c.CreateExportJob(context.Background(), "d1", "sheet")
	require.NoError(t, err)
	assert.Equal(t, "ticket-1", ticket)
}

func TestAwaitExportPollsUntilDone(t *testing.T) {
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/drive/v1/export_tasks/ticket-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "d1", r.URL.Query().Get("token"))
		polls++
		if polls < 3 {
			writeEnvelope(w, exportJobStatus{Result: &exportJobResult{JobStatus: 1}})
			return
		}
		writeEnvelope(w, exportJobStatus{Result: &exportJobResult{JobStatus: 0, FileToken: "dl-1"}})
	})

	c, _, _ := newTestClient(t, mux)

	downloadToken, err := c.AwaitExport(context.Background(), "ticket-1", "d1", 10)
	require.NoError(t, err)
	assert.Equal(t, "dl-1", downloadToken)
	assert.Equal(t, 3, polls)
}

func TestAwaitExportTimesOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/drive/v1/export_tasks/ticket-1", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, exportJobStatus{Result: &exportJobResult{JobStatus: 2}})
	})

	c, _, _ := newTestClient(t, mux)

	_, err := c.AwaitExport(context.Background(), "ticket-1", "d1", 3)
	require.ErrorIs(t, err, ErrExportTimeout)
}

func TestPollExportJobPendingResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/drive/v1/export_tasks/ticket-1", func(w http.ResponseWriter, r *http.Request) {
		// Job accepted but no result block yet
		writeEnvelope(w, exportJobStatus{})
	})

	c, _, _ := newTestClient(t, mux)

	downloadToken, err := c.PollExportJob(context.Background(), "ticket-1", "d1")
	require.NoError(t, err)
	assert.Empty(t, downloadToken)
}

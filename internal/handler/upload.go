package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/importer"
	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/response"
)

const (
	// acceptedErrorSample is how many validation errors an accepted upload echoes back.
	acceptedErrorSample = 10
	// dryRunErrorSample and dryRunRowSample bound the validate-csv preview.
	dryRunErrorSample = 20
	dryRunRowSample   = 5
)

// readUpload parses the multipart "file" field. On failure it writes the
// error response and returns nil.
func readUpload(c *gin.Context, maxBytes int64, required []string, log zerolog.Logger) *importer.Table {
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return nil
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return nil
	}
	defer file.Close()

	table, err := importer.Read(header.Filename, file, required)
	if err != nil {
		var fe *importer.FileError
		if !errors.As(err, &fe) {
			log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to read upload")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
			return nil
		}
		code := response.ErrInvalidFile
		if fe.Reason == importer.ReasonMissingColumns {
			code = response.ErrMissingColumns
		}
		response.FailWithMessage(c, http.StatusBadRequest, code, fe.Message, "file")
		return nil
	}
	return table
}

// failNoValidRows rejects an upload in which every row failed validation.
func failNoValidRows(c *gin.Context, errs []model.RowError) {
	response.FailWithData(c, http.StatusBadRequest, response.ErrNoValidRows,
		response.GetMessage(response.ErrNoValidRows),
		gin.H{"validation_errors": nonNil(errs)})
}

func sample[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return nonNil(items)
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

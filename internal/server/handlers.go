package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/quantora/trademetrics/internal/analytics"
	"github.com/quantora/trademetrics/internal/store"
	"github.com/quantora/trademetrics/internal/types"
	"github.com/quantora/trademetrics/internal/version"
	"github.com/quantora/trademetrics/pkg/errors"
	"go.uber.org/zap"
)

const maxUploadSize = 32 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// statusForError maps structured error codes onto HTTP status codes.
// Validation and schema problems are the caller's data, not ours: 422.
func statusForError(err error) int {
	if errors.IsValidationError(err) || errors.IsSchemaError(err) {
		return http.StatusUnprocessableEntity
	}

	switch code := errors.GetCode(err); {
	case code >= 100 && code < 200:
		return http.StatusUnprocessableEntity
	case code == errors.ErrCodePartitionNotFound || code == errors.ErrCodeClientNotFound:
		return http.StatusNotFound
	case code == errors.ErrCodeMissingParameter || code == errors.ErrCodeInvalidParameter || code == errors.ErrCodeInvalidFileType:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), map[string]any{
		"status":  "error",
		"code":    int(errors.GetCode(err)),
		"message": err.Error(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Server is running",
		"version": version.GetVersion(),
	})
}

// handleCheckAndUpload handles POST /{token}/check_and_upload.
// When the caller already holds as many rows as we do, the upload is
// skipped; otherwise the CSV replaces the client's stored trades.
func (s *Server) handleCheckAndUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeUploadFailed, "failed to parse multipart form", err))

		return
	}

	clientID := r.FormValue("clientID")
	if clientID == "" {
		writeError(w, errors.New(errors.ErrCodeMissingParameter, "clientID is required"))

		return
	}

	stored, err := s.store.CountRows(r.Context(), clientID)
	if err != nil {
		writeError(w, err)

		return
	}

	if rowsCount := r.FormValue("rows_count"); rowsCount != "" {
		expected, err := strconv.Atoi(rowsCount)
		if err != nil {
			writeError(w, errors.New(errors.ErrCodeInvalidParameter, "rows_count must be an integer"))

			return
		}

		if expected == stored {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":  "skipped",
				"message": "Rows count matches, upload skipped",
				"rows":    stored,
			})

			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errors.New(errors.ErrCodeMissingParameter, "file is required"))

		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeError(w, errors.Newf(errors.ErrCodeInvalidFileType, "unsupported file type: %s", header.Filename))

		return
	}

	rows, err := analytics.ReadCSVRows(file)
	if err != nil {
		writeError(w, err)

		return
	}

	// Magic number 0 keeps every row: the upload carries the client's full
	// history and partitions are selected at read time.
	partition, err := analytics.ParseRecords(rows, clientID, 0)
	if err != nil {
		writeError(w, err)

		return
	}

	saved, err := s.store.Replace(r.Context(), clientID, partition.Records, partition.Columns)
	if err != nil {
		writeError(w, err)

		return
	}

	s.logger.Info("CSV upload stored",
		zap.String("client_id", clientID),
		zap.Int("rows_saved", saved),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"rows_saved": saved,
	})
}

// handleTransaction handles POST /{token}/transactions: one closed trade
// as a JSON object of source fields plus client_id.
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid json body", err))

		return
	}

	clientID, _ := body["client_id"].(string)
	if clientID == "" {
		writeError(w, errors.New(errors.ErrCodeMissingParameter, "client_id is required"))

		return
	}

	delete(body, "client_id")

	payload := make(map[string]string, len(body))
	for key, value := range body {
		payload[key] = stringifyField(value)
	}

	record, err := analytics.ParseRecord(payload)
	if err != nil {
		writeError(w, err)

		return
	}

	if err := s.store.Append(r.Context(), clientID, record); err != nil {
		writeError(w, err)

		return
	}

	s.notifySubscribers(r, partitionKey{clientID: clientID, magicNumber: record.MagicNumber})

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
	})
}

// handleMetrics handles GET /{token}/metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	key, err := partitionParams(r)
	if err != nil {
		writeError(w, err)

		return
	}

	report, err := s.computeReport(r, key)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleClients handles GET /{token}/clients.
func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	clientIDs, err := s.store.ListClients(r.Context())
	if err != nil {
		writeError(w, err)

		return
	}

	type clientInfo struct {
		ClientID   string                `json:"client_id"`
		Partitions []store.PartitionInfo `json:"partitions"`
	}

	clients := make([]clientInfo, 0, len(clientIDs))

	for _, clientID := range clientIDs {
		partitions, err := s.store.ListPartitions(r.Context(), clientID)
		if err != nil {
			writeError(w, err)

			return
		}

		clients = append(clients, clientInfo{ClientID: clientID, Partitions: partitions})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"clients": clients,
	})
}

// handleMetricsWebSocket handles GET /{token}/metrics/ws: pushes a report
// on subscribe and again after every append to the partition.
func (s *Server) handleMetricsWebSocket(w http.ResponseWriter, r *http.Request) {
	key, err := partitionParams(r)
	if err != nil {
		writeError(w, err)

		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.hub.subscribe(key, conn)

	defer func() {
		s.hub.unsubscribe(key, conn)
		conn.Close()
	}()

	if report, err := s.computeReport(r, key); err == nil {
		if err := conn.WriteJSON(report); err != nil {
			return
		}
	} else {
		s.logger.Warn("Initial websocket report failed",
			zap.String("client_id", key.clientID),
			zap.Int64("magic_number", key.magicNumber),
			zap.Error(err),
		)
	}

	// Hold the connection open until the peer goes away; pushes happen
	// through the hub.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func partitionParams(r *http.Request) (partitionKey, error) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		return partitionKey{}, errors.New(errors.ErrCodeMissingParameter, "client_id is required")
	}

	magicRaw := r.URL.Query().Get("magic_number")
	if magicRaw == "" {
		return partitionKey{}, errors.New(errors.ErrCodeMissingParameter, "magic_number is required")
	}

	magic, err := strconv.ParseInt(magicRaw, 10, 64)
	if err != nil {
		return partitionKey{}, errors.Newf(errors.ErrCodeInvalidParameter, "invalid magic_number: %s", magicRaw)
	}

	return partitionKey{clientID: clientID, magicNumber: magic}, nil
}

func (s *Server) computeReport(r *http.Request, key partitionKey) (types.MetricsReport, error) {
	exists, err := s.store.Exists(r.Context(), key.clientID, key.magicNumber)
	if err != nil {
		return types.MetricsReport{}, err
	}

	if !exists {
		return types.MetricsReport{}, errors.Newf(errors.ErrCodePartitionNotFound,
			"no trades for client %s with magic number %d", key.clientID, key.magicNumber)
	}

	partition, err := s.store.LoadPartition(r.Context(), key.clientID, key.magicNumber)
	if err != nil {
		return types.MetricsReport{}, err
	}

	return analytics.Compute(partition)
}

// notifySubscribers recomputes the partition's report and pushes it to
// websocket subscribers. Skipped entirely when nobody is listening.
func (s *Server) notifySubscribers(r *http.Request, key partitionKey) {
	if !s.hub.hasSubscribers(key) {
		return
	}

	report, err := s.computeReport(r, key)
	if err != nil {
		s.logger.Warn("Failed to push report to subscribers",
			zap.String("client_id", key.clientID),
			zap.Int64("magic_number", key.magicNumber),
			zap.Error(err),
		)

		return
	}

	s.hub.broadcast(key, report)
}

func stringifyField(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}

		return string(data)
	}
}

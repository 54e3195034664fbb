package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/service"
	"evgrid/backend/services/ocpp-server/internal/ws"
)

// sessionLookup returns the session of a connected station.
type sessionLookup func(stationID string) (ocpp.MessageContext, bool)

func managerSessions(manager *ws.Manager) sessionLookup {
	return func(stationID string) (ocpp.MessageContext, bool) {
		conn, ok := manager.Get(stationID)
		if !ok {
			return ocpp.MessageContext{}, false
		}
		return conn.Session(), true
	}
}

// transactionStatusHandler asks a connected station about a transaction:
// GET /transactions/status?station_id=CS1&transaction_id=tx-1
func transactionStatusHandler(sessions sessionLookup, calls service.CallSender, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		stationID := r.URL.Query().Get("station_id")
		if stationID == "" {
			http.Error(w, "station_id is required", http.StatusBadRequest)
			return
		}
		session, ok := sessions(stationID)
		if !ok {
			http.Error(w, "station not connected", http.StatusNotFound)
			return
		}

		raw, err := calls.SendCall(r.Context(), session, protocol.ActionGetTransactionStatus, protocol.GetTransactionStatusRequest{
			TransactionID: r.URL.Query().Get("transaction_id"),
		})
		if err != nil {
			status := http.StatusBadGateway
			switch {
			case errors.Is(err, ocpp.ErrCallTimeout):
				status = http.StatusGatewayTimeout
			case errors.Is(err, ocpp.ErrNotConnected):
				status = http.StatusNotFound
			}
			logger.Warn("transaction status request failed", zap.String("station_id", stationID), zap.Error(err))
			http.Error(w, err.Error(), status)
			return
		}

		var resp protocol.GetTransactionStatusResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			http.Error(w, "malformed station answer", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

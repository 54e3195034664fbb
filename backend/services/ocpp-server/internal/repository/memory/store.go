// Package memory keeps every repository in process memory. It backs local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/repository"
)

type txKey struct {
	stationID     string
	transactionID string
}

type attrKey struct {
	stationID   string
	component   string
	evseID      int
	connectorID int
	variable    string
}

type authKey struct {
	tenantID string
	idToken  string
	idType   string
}

type resKey struct {
	id        int
	stationID string
}

// LogEntry is a message recorded through Save.
type LogEntry struct {
	Context   ocpp.MessageContext
	Direction string
	Action    string
	Payload   []byte
}

// Store implements the transaction, tariff, reservation, device model, authorization,
// station and message log repositories behind one mutex.
type Store struct {
	mu sync.Mutex

	nextID         int64
	transactions   map[txKey]*models.Transaction
	transactionIDs map[int64]*models.Transaction
	events         []models.TransactionEvent
	meterValues    []models.MeterValue
	tariffs        map[string]models.Tariff
	reservations   map[resKey]*models.Reservation
	attributes     map[attrKey]models.VariableAttribute
	authorizations map[authKey]models.Authorization
	statuses       []models.StatusNotification
	security       map[string]models.StationSecurityInfo
	messages       []LogEntry
}

func NewStore() *Store {
	return &Store{
		transactions:   make(map[txKey]*models.Transaction),
		transactionIDs: make(map[int64]*models.Transaction),
		tariffs:        make(map[string]models.Tariff),
		reservations:   make(map[resKey]*models.Reservation),
		attributes:     make(map[attrKey]models.VariableAttribute),
		authorizations: make(map[authKey]models.Authorization),
		security:       make(map[string]models.StationSecurityInfo),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateOrUpdateTransaction(ctx context.Context, stationID string, event *protocol.TransactionEventRequest) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := txKey{stationID: stationID, transactionID: event.TransactionInfo.TransactionID}
	tx, ok := s.transactions[key]
	if !ok {
		tx = &models.Transaction{ID: s.id(), StationID: stationID, IsActive: true, CreatedAt: now}
		s.transactions[key] = tx
		s.transactionIDs[tx.ID] = tx
	}
	tx.ApplyEvent(event)
	tx.UpdatedAt = now

	eventID := s.id()
	s.events = append(s.events, models.TransactionEvent{
		ID:              eventID,
		TransactionDBID: tx.ID,
		StationID:       stationID,
		EventType:       event.EventType,
		TriggerReason:   event.TriggerReason,
		SeqNo:           event.SeqNo,
		Offline:         event.Offline,
		ReservationID:   event.ReservationID,
		IdToken:         event.IdToken,
		Timestamp:       event.Timestamp,
	})
	for _, mv := range event.MeterValue {
		s.appendMeterValue(stationID, &tx.ID, &eventID, mv)
	}

	out := *tx
	return &out, nil
}

func (s *Store) ReadTransaction(ctx context.Context, stationID, transactionID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txKey{stationID: stationID, transactionID: transactionID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *tx
	return &out, nil
}

func (s *Store) CreateMeterValue(ctx context.Context, stationID string, transactionDBID *int64, mv protocol.MeterValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendMeterValue(stationID, transactionDBID, nil, mv)
	if transactionDBID != nil {
		if tx, ok := s.transactionIDs[*transactionDBID]; ok {
			tx.TotalKwh = nil
		}
	}
	return nil
}

func (s *Store) appendMeterValue(stationID string, transactionDBID, eventID *int64, mv protocol.MeterValue) {
	ts := mv.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	s.meterValues = append(s.meterValues, models.MeterValue{
		ID:                 s.id(),
		StationID:          stationID,
		TransactionDBID:    copyID(transactionDBID),
		TransactionEventID: copyID(eventID),
		Timestamp:          ts,
		SampledValue:       append([]protocol.SampledValue(nil), mv.SampledValue...),
	})
}

func (s *Store) ReadMeterValues(ctx context.Context, transactionDBID int64) ([]models.MeterValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.MeterValue
	for _, mv := range s.meterValues {
		if mv.TransactionDBID != nil && *mv.TransactionDBID == transactionDBID {
			out = append(out, mv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) UpdateTransactionTotalKwh(ctx context.Context, transactionDBID int64, totalKwh float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionIDs[transactionDBID]
	if !ok {
		return repository.ErrNotFound
	}
	tx.TotalKwh = &totalKwh
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CountActiveTransactionsByIdToken(ctx context.Context, idToken, idTokenType, excludeStationID, excludeTransactionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, tx := range s.transactions {
		if key.stationID == excludeStationID && key.transactionID == excludeTransactionID {
			continue
		}
		if tx.IsActive && tx.IdToken == idToken && tx.IdTokenType == idTokenType {
			n++
		}
	}
	return n, nil
}

// Transactions returns a copy of every tracked transaction.
func (s *Store) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Events returns a copy of the recorded transaction events.
func (s *Store) Events() []models.TransactionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TransactionEvent(nil), s.events...)
}

// MeterValues returns a copy of every stored reading.
func (s *Store) MeterValues() []models.MeterValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MeterValue(nil), s.meterValues...)
}

func (s *Store) PutTariff(t models.Tariff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	s.tariffs[t.StationID] = t
}

func (s *Store) ReadActiveTariffByStation(ctx context.Context, stationID string) (*models.Tariff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tariffs[stationID]
	if !ok || !t.IsActive {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (s *Store) PutReservation(r models.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[resKey{id: r.ID, stationID: r.StationID}] = &r
}

// Reservation returns a copy of the reservation and whether it exists.
func (s *Store) Reservation(id int, stationID string) (models.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[resKey{id: id, stationID: stationID}]
	if !ok {
		return models.Reservation{}, false
	}
	return *r, true
}

func (s *Store) TerminateReservation(ctx context.Context, reservationID int, stationID, transactionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[resKey{id: reservationID, stationID: stationID}]
	if !ok {
		return 0, nil
	}
	now := time.Now().UTC()
	tid := transactionID
	r.IsActive = false
	r.TerminatedByTransaction = &tid
	r.UpdatedAt = &now
	return 1, nil
}

func (s *Store) ReadVariableAttribute(ctx context.Context, stationID, component, variable string) (*models.VariableAttribute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *models.VariableAttribute
	var bestKey attrKey
	for key, attr := range s.attributes {
		if key.stationID != stationID || key.component != component || key.variable != variable {
			continue
		}
		if best == nil || key.evseID < bestKey.evseID || (key.evseID == bestKey.evseID && key.connectorID < bestKey.connectorID) {
			a := attr
			best, bestKey = &a, key
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}

func (s *Store) UpsertVariableAttribute(ctx context.Context, a models.VariableAttribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.UpdatedAt = time.Now().UTC()
	s.attributes[attrKey{
		stationID:   a.StationID,
		component:   a.Component,
		evseID:      derefInt(a.EvseID),
		connectorID: derefInt(a.ConnectorID),
		variable:    a.Variable,
	}] = a
	return nil
}

func (s *Store) PutAuthorization(a models.Authorization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.id()
	}
	s.authorizations[authKey{tenantID: a.TenantID, idToken: a.IdToken, idType: a.IdTokenType}] = a
}

func (s *Store) ReadAuthorization(ctx context.Context, tenantID, idToken, idTokenType string) (*models.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.authorizations[authKey{tenantID: tenantID, idToken: idToken, idType: idTokenType}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (s *Store) AddStatusNotification(ctx context.Context, n models.StatusNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.id()
	n.CreatedAt = time.Now().UTC()
	s.statuses = append(s.statuses, n)
	return nil
}

// StatusNotifications returns a copy of the status history.
func (s *Store) StatusNotifications() []models.StatusNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StatusNotification(nil), s.statuses...)
}

func (s *Store) PutSecurityInfo(info models.StationSecurityInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.security[info.StationID] = info
}

func (s *Store) ReadSecurityInfo(ctx context.Context, stationID string) (*models.StationSecurityInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.security[stationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &info, nil
}

func (s *Store) Save(ctx context.Context, mc ocpp.MessageContext, direction, action string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, LogEntry{
		Context:   mc,
		Direction: direction,
		Action:    action,
		Payload:   append([]byte(nil), payload...),
	})
	return nil
}

// Messages returns a copy of the message log.
func (s *Store) Messages() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.messages...)
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

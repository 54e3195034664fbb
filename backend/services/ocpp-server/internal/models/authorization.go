package models

import "time"

// Authorization is the stored decision for an IdToken.
type Authorization struct {
	ID                    int64      `db:"id" json:"id"`
	TenantID              string     `db:"tenant_id" json:"tenantId"`
	IdToken               string     `db:"id_token" json:"idToken"`
	IdTokenType           string     `db:"id_token_type" json:"idTokenType"`
	Status                string     `db:"status" json:"status"`
	CacheExpiryDateTime   *time.Time `db:"cache_expiry_date_time" json:"cacheExpiryDateTime,omitempty"`
	ChargingPriority      *int       `db:"charging_priority" json:"chargingPriority,omitempty"`
	Language1             string     `db:"language1" json:"language1,omitempty"`
	GroupIdToken          string     `db:"group_id_token" json:"groupIdToken,omitempty"`
	PersonalMessage       string     `db:"personal_message" json:"personalMessage,omitempty"`
	ConcurrentTransaction bool       `db:"concurrent_transaction" json:"concurrentTransaction"`
	AllowedStations       []string   `db:"allowed_stations" json:"allowedStations,omitempty"`
}

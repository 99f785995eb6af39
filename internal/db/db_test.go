package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatements_AudienceQueriesScanIDAndToken(t *testing.T) {
	stmts := Statements()
	for _, name := range []string{"event_going_users", "category_subscribers", "community_member_users"} {
		sql, ok := stmts[name]
		if assert.True(t, ok, name) {
			assert.Contains(t, sql, "COALESCE(u.fcm_token, '')", name)
		}
	}
}

func TestStatements_WindowIsInclusiveAndFiltered(t *testing.T) {
	sql := Statements()["upcoming_events"]
	assert.Contains(t, sql, "start_time >= $1")
	assert.Contains(t, sql, "start_time <= $2")
	assert.Contains(t, sql, "active = true")
	assert.Contains(t, sql, "deleted = false")
	assert.Contains(t, sql, "ORDER BY start_time")
}

func TestStatements_LedgerClaimIsInsertIfAbsent(t *testing.T) {
	assert.Contains(t, Statements()["ledger_claim"], "ON CONFLICT (event_id) DO NOTHING")
}

func TestSchemaEmbedded(t *testing.T) {
	assert.True(t, strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS notified_events"))
	assert.True(t, strings.Contains(schemaSQL, "event_schedule_changed"))
}

func TestSchema_ChangeFeedSendsEpochStartTime(t *testing.T) {
	assert.Contains(t, schemaSQL, "'start_time', extract(epoch FROM NEW.start_time)")
}

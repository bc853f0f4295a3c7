package postgres

import (
	"fmt"
	"strings"
)

// eventColumns is the full denormalized column set of the events table, in
// insert order. eventArgs in helpers.go must stay aligned with it.
var eventColumns = []string{
	"event_id", "site_id", "event_name", "event_timestamp", "received_at", "script_version",
	"client_id", "user_id", "session_id",
	"email_hash", "phone_hash", "first_name_hash", "last_name_hash",
	"user_agent", "device_category", "browser", "browser_version", "operating_system",
	"screen_resolution", "viewport_size", "language", "timezone",
	"ip_address", "ip_city", "ip_region", "ip_country", "ip_postal_code",
	"ip_latitude", "ip_longitude", "ip_timezone", "ip_organization",
	"ip_asn", "ip_asn_name", "ip_asn_domain", "ip_company_name", "ip_company_domain",
	"ip_connection_type", "ip_is_vpn", "ip_is_proxy", "ip_is_tor", "ip_is_hosting", "visitor_type",
	"page_url", "page_path", "page_title", "page_hostname", "page_referrer", "referrer_hostname",
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"gclid", "fbclid", "ttclid",
	"first_utm_source", "first_utm_medium", "first_utm_campaign", "first_utm_term",
	"first_utm_content", "first_referrer",
	"engagement_time_msec", "scroll_depth_percent", "is_first_visit",
	"session_number", "page_view_number",
	"properties", "ecommerce_data", "lead_data",
}

// queryInsertEvent is built once from eventColumns. RETURNING id yields the
// monotonic insert sequence used for ordering.
var queryInsertEvent = buildInsertEventQuery()

func buildInsertEventQuery() string {
	params := make([]string, len(eventColumns))
	for i := range eventColumns {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO events (%s) VALUES (%s) RETURNING id",
		strings.Join(eventColumns, ", "),
		strings.Join(params, ", "),
	)
}

var querySelectEventsBySession = fmt.Sprintf(`
	SELECT id, %s
	FROM events
	WHERE session_id = $1
	ORDER BY received_at DESC, id DESC
	LIMIT $2 OFFSET $3`,
	strings.Join(eventColumns, ", "),
)

const (
	// First-touch attribution is pinned once per (site, client) and read
	// back authoritatively on every write.
	queryPinFirstTouch = `
		INSERT INTO client_attribution (
			site_id, client_id,
			first_utm_source, first_utm_medium, first_utm_campaign,
			first_utm_term, first_utm_content, first_referrer
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (site_id, client_id) DO NOTHING
	`

	querySelectFirstTouch = `
		SELECT
			COALESCE(first_utm_source, ''),
			COALESCE(first_utm_medium, ''),
			COALESCE(first_utm_campaign, ''),
			COALESCE(first_utm_term, ''),
			COALESCE(first_utm_content, ''),
			COALESCE(first_referrer, '')
		FROM client_attribution
		WHERE site_id = $1 AND client_id = $2
	`

	queryResolveSite = `
		SELECT s.id, s.script_id, COALESCE(s.agency_id::text, ''), s.is_connected,
		       COALESCE(s.config, '{}'::jsonb),
		       COALESCE(a.config, '{}'::jsonb)
		FROM sites s
		LEFT JOIN agencies a ON a.id = s.agency_id
		WHERE s.script_id = $1 AND s.status = 'active'
	`

	queryMarkConnected = `
		UPDATE sites
		SET is_connected = TRUE,
		    first_event_at = COALESCE(first_event_at, NOW())
		WHERE id = $1 AND is_connected = FALSE
	`

	queryActiveRuleValue = `
		SELECT score_value
		FROM event_scoring_rules
		WHERE site_id = $1 AND event_name = $2 AND active = TRUE
	`

	// queryApplyScore is the single-row atomic increment-and-read: the
	// returned total is exactly what was stored, which keeps the history
	// row's total_score_after consistent under concurrent scoring calls
	// for the same visitor.
	queryApplyScore = `
		INSERT INTO visitor_scores (id, site_id, client_id, session_id, total_score, score_breakdown, last_updated)
		VALUES ($1, $2, $3, $4, $5, jsonb_build_object($6::text, 1), NOW())
		ON CONFLICT (site_id, client_id)
		DO UPDATE SET
			total_score = visitor_scores.total_score + $5,
			score_breakdown = jsonb_set(
				COALESCE(visitor_scores.score_breakdown, '{}'::jsonb),
				ARRAY[$6::text],
				to_jsonb(COALESCE((visitor_scores.score_breakdown->>$6)::int, 0) + 1)
			),
			session_id = $4,
			last_updated = NOW()
		RETURNING id, total_score
	`

	queryAppendHistory = `
		INSERT INTO score_history (id, visitor_score_id, event_name, score_change, total_score_after, event_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	queryUpsertRule = `
		INSERT INTO event_scoring_rules (id, site_id, event_name, score_value, description, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (site_id, event_name)
		DO UPDATE SET
			score_value = $4,
			description = $5,
			active = $6,
			updated_at = NOW()
		RETURNING id, site_id, event_name, score_value, COALESCE(description, ''), active
	`

	queryListRules = `
		SELECT id, site_id, event_name, score_value, COALESCE(description, ''), active
		FROM event_scoring_rules
		WHERE site_id = $1
		ORDER BY event_name ASC
	`

	queryDeleteRule = `
		DELETE FROM event_scoring_rules
		WHERE id = $1 AND site_id = $2
	`

	queryVisitorScore = `
		SELECT id, site_id, client_id, COALESCE(session_id, ''), total_score,
		       COALESCE(score_breakdown, '{}'::jsonb), last_updated
		FROM visitor_scores
		WHERE site_id = $1 AND client_id = $2
	`

	queryScoreHistory = `
		SELECT sh.id, sh.visitor_score_id, sh.event_name, sh.score_change,
		       sh.total_score_after, COALESCE(sh.event_id, ''), sh.created_at
		FROM score_history sh
		JOIN visitor_scores vs ON vs.id = sh.visitor_score_id
		WHERE vs.site_id = $1 AND vs.client_id = $2
		ORDER BY sh.created_at DESC
		LIMIT $3
	`

	queryTopVisitors = `
		SELECT id, site_id, client_id, COALESCE(session_id, ''), total_score,
		       COALESCE(score_breakdown, '{}'::jsonb), last_updated
		FROM visitor_scores
		WHERE site_id = $1
		ORDER BY total_score DESC
		LIMIT $2
	`
)

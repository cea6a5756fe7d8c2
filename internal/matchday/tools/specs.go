package tools

import (
	"encoding/json"

	"github.com/matchdaybot/matchday/internal/matchday/reasoning"
)

// paramSchemas holds the JSON-schema argument description offered to the
// reasoning backend for each tool. Schemas are kept alongside the
// implementations so an argument change cannot drift from its description.
var paramSchemas = map[string]string{
	"get_my_commands": `{"type":"object","properties":{},"additionalProperties":false}`,
	"get_player_list": `{"type":"object","properties":{
		"status":{"type":"string","enum":["pending","active","injured","inactive","rejected"],"description":"Optional status filter."}
	},"additionalProperties":false}`,
	"get_player_status": `{"type":"object","properties":{
		"player_id":{"type":"string","description":"Player ID; omit for the calling player."}
	},"additionalProperties":false}`,
	"get_match_list": `{"type":"object","properties":{
		"limit":{"type":"integer","minimum":1,"description":"Maximum number of matches to return."}
	},"additionalProperties":false}`,
	"get_availability": `{"type":"object","properties":{
		"match_id":{"type":"string","description":"Match ID; omit for the next match."}
	},"additionalProperties":false}`,
	"add_player": `{"type":"object","required":["display_name"],"properties":{
		"display_name":{"type":"string"},
		"position":{"type":"string"},
		"mxid":{"type":"string","description":"Chat user ID when known."},
		"pending":{"type":"boolean","description":"Create as a registration awaiting approval."}
	},"additionalProperties":false}`,
	"update_player_status": `{"type":"object","required":["player_id","status"],"properties":{
		"player_id":{"type":"string"},
		"status":{"type":"string","enum":["active","injured","inactive"]}
	},"additionalProperties":false}`,
	"approve_player": `{"type":"object","required":["registration_id","approved"],"properties":{
		"registration_id":{"type":"string"},
		"approved":{"type":"boolean"},
		"reason":{"type":"string","description":"Required when rejecting."}
	},"additionalProperties":false}`,
	"grant_administrator": `{"type":"object","required":["mxid"],"properties":{
		"mxid":{"type":"string","description":"Matrix user ID of the member to promote."}
	},"additionalProperties":false}`,
	"create_match": `{"type":"object","required":["opponent","venue","kickoff"],"properties":{
		"opponent":{"type":"string"},
		"venue":{"type":"string","enum":["home","away"]},
		"kickoff":{"type":"string","description":"RFC 3339 timestamp."}
	},"additionalProperties":false}`,
	"record_availability": `{"type":"object","required":["available"],"properties":{
		"available":{"type":"boolean"},
		"match_id":{"type":"string","description":"Match ID; omit for the next match."},
		"note":{"type":"string"}
	},"additionalProperties":false}`,
	"send_team_message": `{"type":"object","required":["message"],"properties":{
		"message":{"type":"string"}
	},"additionalProperties":false}`,
}

// Specs builds the reasoning tool specs for the named tools. Unknown names
// are skipped; the caller has already validated them against its own
// catalog. Descriptions come from the supplied lookup, which may return an
// empty string.
func Specs(names []string, describe func(name string) string) []reasoning.ToolSpec {
	var out []reasoning.ToolSpec
	for _, name := range names {
		schema, ok := paramSchemas[name]
		if !ok {
			continue
		}
		out = append(out, reasoning.ToolSpec{
			Name:        name,
			Description: describe(name),
			Parameters:  json.RawMessage(schema),
		})
	}
	return out
}

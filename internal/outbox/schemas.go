package outbox

const auditRecordedSchema = `{
  "type": "object",
  "title": "AuditRecorded",
  "properties": {
    "entry_id": {"type": "string"},
    "workspace_id": {"type": "string"},
    "actor_user_id": {"type": "string"},
    "action": {"type": "string"},
    "payload": {"type": "object"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["entry_id", "workspace_id", "actor_user_id", "action", "occurred_at"],
  "additionalProperties": false
}`

package types

// JSON Schemas for the wire messages. Format constraints (atomic amounts,
// addresses, network ids, timestamps) are expressed as patterns so one
// schema pass covers both structure and format.

const challengeSchema = `{
  "type": "object",
  "required": ["version", "scheme", "network", "asset", "payTo", "maxAmountRequired", "maxTimeoutSeconds", "challengeId", "bind", "resource"],
  "properties": {
    "version": {"type": "string", "enum": ["x402.v1"]},
    "scheme": {"type": "string", "enum": ["exact", "upto"]},
    "network": {"type": "string", "pattern": "^[^:]+:[^:]+:[^:]+$"},
    "asset": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "payTo": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "maxAmountRequired": {"type": "string", "pattern": "^[0-9]+$"},
    "maxTimeoutSeconds": {"type": "integer", "minimum": 0},
    "challengeId": {"type": "string", "minLength": 1},
    "bind": {
      "type": "object",
      "required": ["host", "method", "path"],
      "properties": {
        "host": {"type": "string", "minLength": 1},
        "method": {"type": "string", "minLength": 1},
        "path": {"type": "string", "minLength": 1},
        "bodySha256": {"type": "string"}
      }
    },
    "resource": {"type": "string", "minLength": 1},
    "meta": {"type": "object"}
  }
}`

const paymentHeaderSchema = `{
  "type": "object",
  "required": ["version", "scheme", "challengeId", "network", "asset", "paidAmount", "issuedAt", "nonce", "proof"],
  "properties": {
    "version": {"type": "string", "enum": ["x402.v1"]},
    "scheme": {"type": "string", "enum": ["exact", "upto"]},
    "challengeId": {"type": "string", "minLength": 1},
    "network": {"type": "string", "pattern": "^[^:]+:[^:]+:[^:]+$"},
    "asset": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "paidAmount": {"type": "string", "pattern": "^[0-9]+$"},
    "payer": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "issuedAt": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}"},
    "nonce": {"type": "string", "minLength": 1},
    "proof": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "enum": ["facilitator", "onchain", "mock"]}
      }
    }
  }
}`

const paymentResponseSchema = `{
  "type": "object",
  "required": ["ok", "challengeId", "resource"],
  "properties": {
    "ok": {"type": "boolean"},
    "challengeId": {"type": "string"},
    "resource": {"type": "string"},
    "entitlement": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "enum": ["cookie", "bearer", "none"]},
        "ttlSeconds": {"type": "integer", "minimum": 0}
      }
    },
    "error": {"type": "string"},
    "reason": {"type": "string"}
  }
}`

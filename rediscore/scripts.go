package rediscore

import "github.com/redis/go-redis/v9"

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReused   int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 4
)

// rotateRefreshScript is the compare-and-swap at the heart of refresh
// rotation. Exactly one caller presenting the current token hash observes
// status 3; a token matching the remembered previous hash observes status
// 2, the reuse signal. Everything else is indistinguishable from a missing
// session.
const rotateRefreshScript = `
local session_key = KEYS[1]
local user_prefix = ARGV[1]
local provided_hash = ARGV[2]
local next_hash = ARGV[3]
local next_anti_csrf = ARGV[4]
local now_ms = tonumber(ARGV[5])
local refresh_ttl_ms = tonumber(ARGV[6])

local data = redis.call("GET", session_key)
if not data then
  return {0}
end

local ok, rec = pcall(cjson.decode, data)
if not ok or type(rec) ~= "table" or not rec.u or not rec.h then
  return {4}
end

local user_key = user_prefix .. rec.u

if rec.ea and rec.ea <= now_ms then
  redis.call("DEL", session_key)
  redis.call("SREM", user_key, rec.h)
  return {1}
end

if rec.rh == provided_hash then
  rec.ph = rec.rh
  rec.rh = next_hash
  rec.g = (rec.g or 0) + 1
  rec.ac = next_anti_csrf
  rec.ea = now_ms + refresh_ttl_ms
  local updated = cjson.encode(rec)
  redis.call("SET", session_key, updated, "PX", refresh_ttl_ms)
  redis.call("SADD", user_key, rec.h)
  return {3, updated}
end

if rec.ph and rec.ph ~= "" and rec.ph == provided_hash then
  return {2, data}
end

return {0}
`

// updateFieldScript replaces one pre-encoded JSON string field ("p" or
// "d") in the record while preserving the key's remaining TTL.
const updateFieldScript = `
local session_key = KEYS[1]
local field = ARGV[1]
local value = ARGV[2]
local now_ms = tonumber(ARGV[3])

local data = redis.call("GET", session_key)
if not data then
  return 0
end

local ok, rec = pcall(cjson.decode, data)
if not ok or type(rec) ~= "table" then
  return -1
end
if rec.ea and rec.ea <= now_ms then
  return 0
end

local ttl = redis.call("PTTL", session_key)
if ttl <= 0 then
  return 0
end

rec[field] = value
redis.call("SET", session_key, cjson.encode(rec), "PX", ttl)
return 1
`

// deleteSessionScript removes a session and its user-index entry together.
const deleteSessionScript = `
local session_key = KEYS[1]
local user_prefix = ARGV[1]

local data = redis.call("GET", session_key)
if not data then
  return 0
end

redis.call("DEL", session_key)

local ok, rec = pcall(cjson.decode, data)
if ok and type(rec) == "table" and rec.u and rec.h then
  redis.call("SREM", user_prefix .. rec.u, rec.h)
end
return 1
`

var (
	rotateRefreshLua = redis.NewScript(rotateRefreshScript)
	updateFieldLua   = redis.NewScript(updateFieldScript)
	deleteSessionLua = redis.NewScript(deleteSessionScript)
)

package redis

const (
	// writeSnapshotScript atomically stores a snapshot and indexes its date
	writeSnapshotScript = `
local snapshot_key = KEYS[1]  -- {prefix}:snapshot:{date}
local index_key = KEYS[2]     -- {prefix}:snapshots

local date = ARGV[1]
local data = ARGV[2]
local ttl_seconds = tonumber(ARGV[3])

redis.call('SET', snapshot_key, data)

-- Retention is optional; without it snapshots are kept forever
if ttl_seconds > 0 then
  redis.call('EXPIRE', snapshot_key, ttl_seconds)
end

redis.call('SADD', index_key, date)

return 'OK'
`
)

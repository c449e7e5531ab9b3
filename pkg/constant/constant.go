package constant

// Message session types
const (
	SessionTypeConversation = 1 // Private conversation (two participants)
	SessionTypeChannel      = 2 // Group channel
)

// Group visibility
const (
	GroupVisibilityPublic  = 0
	GroupVisibilityPrivate = 1
)

// Group status
const (
	GroupStatusNormal    = 0
	GroupStatusDismissed = 1
)

// Group member status
const (
	GroupMemberStatusNormal = 0
	GroupMemberStatusLeft   = 1
	GroupMemberStatusKicked = 2
)

// Group member role levels
const (
	RoleLevelMember = 0
	RoleLevelAdmin  = 1
	RoleLevelOwner  = 2
)

// Feed projections
const (
	ProjectionGlobal   = "global"
	ProjectionPersonal = "personal"
	ProjectionShelf    = "shelf"
)

// Redis key patterns (without prefix, use RedisKey() getters for full keys)
const (
	redisKeyOnline        = "online:%s"           // online:{user_id}
	redisKeyUnreadSummary = "unread:summary:%s"   // unread:summary:{user_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "readowl:rt:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyOnline() string        { return redisKeyPrefix + redisKeyOnline }
func RedisKeyUnreadSummary() string { return redisKeyPrefix + redisKeyUnreadSummary }

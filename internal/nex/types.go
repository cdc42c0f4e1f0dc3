// Package nex models the contract with the NEX game-server RPC layer: the
// typed parameters and results of the Ranking and DataStore protocols, the
// RMC error model, and the client interfaces the harvest engine calls. The
// framed transport, handshake and serialization behind these interfaces are
// external collaborators.
package nex

import "time"

// RankingMode selects the enumeration style of a get_ranking call.
type RankingMode uint8

const (
	// RankingModeGlobal pages the global leaderboard by numeric offset.
	RankingModeGlobal RankingMode = 0
	// RankingModeGlobalAroundSelf returns the window of ranks around a
	// given (unique id, principal id) pair.
	RankingModeGlobalAroundSelf RankingMode = 1
)

// OrdinalRanking requests 1,2,3,4 tie-breaking rather than 1,2,2,4, so equal
// scores still carry distinct ranks.
const OrdinalRanking = 1

// ResultOptionAll requests every optional meta field on DataStore results.
const ResultOptionAll = 0xFF

// RankingOrderParam is the paging parameter of a get_ranking call.
type RankingOrderParam struct {
	OrderCalc uint8
	Offset    uint32
	Count     uint8
}

// RankData is one leaderboard entry. UpdateTime is present on the wire at
// record version >= 1; session implementations must decode and expose it.
type RankData struct {
	PID        uint64
	UniqueID   uint64
	Rank       uint32
	Category   uint32
	Score      uint32
	Groups     []uint8
	Param      uint64
	CommonData []byte
	UpdateTime time.Time
}

// RankingResult is the response of a get_ranking call. Total is the server's
// claimed leaderboard size; servers are known to under-report it.
type RankingResult struct {
	Data  []RankData
	Total uint32
}

// DataStoreSearchParam drives search_object. Zero time values mean "no
// bracket"; ResultOrder 1 asks for descending data-id order.
type DataStoreSearchParam struct {
	CreatedAfter  time.Time
	CreatedBefore time.Time
	ResultOffset  uint32
	ResultSize    uint32
	ResultOrder   uint8
	ResultOption  uint8
}

// DataStorePermission is an access mask plus its explicit recipients.
type DataStorePermission struct {
	Permission uint8
	Recipients []uint64
}

// DataStoreRating is one rating slot of an object.
type DataStoreRating struct {
	Slot         int8
	TotalValue   int64
	Count        uint32
	InitialValue int64
}

// DataStoreMetaInfo is the full metadata record of one stored object.
type DataStoreMetaInfo struct {
	DataID           uint64
	OwnerID          uint64
	Size             uint32
	Name             string
	DataType         uint16
	MetaBinary       []byte
	Permission       DataStorePermission
	DeletePermission DataStorePermission
	CreateTime       time.Time
	UpdateTime       time.Time
	Period           uint16
	Status           uint8
	ReferredCount    uint32
	ReferDataID      uint32
	Flag             uint32
	ReferredTime     time.Time
	ExpireTime       time.Time
	Tags             []string
	Ratings          []DataStoreRating
}

// DataStorePersistenceTarget names one named save slot of an owner.
type DataStorePersistenceTarget struct {
	OwnerID       uint64
	PersistenceID uint16
}

// DataStoreGetMetaParam drives get_metas and get_metas_multiple_param.
// Either DataID or PersistenceTarget selects the object.
type DataStoreGetMetaParam struct {
	DataID            uint64
	PersistenceTarget DataStorePersistenceTarget
	ResultOption      uint8
}

// DataStoreMetasResult pairs each requested id with its per-entry outcome.
// Entries and Results are index-aligned with the request.
type DataStoreMetasResult struct {
	Entries []DataStoreMetaInfo
	Results []Result
}

// Result is a per-entry RMC outcome inside a batched response.
type Result struct {
	Err error
}

// OK reports whether the entry succeeded.
func (r Result) OK() bool { return r.Err == nil }

// DataStorePrepareGetParam drives prepare_get_object.
type DataStorePrepareGetParam struct {
	DataID            uint64
	PersistenceTarget DataStorePersistenceTarget
}

// DataStoreReqGetInfo is the signed download ticket for one object: a
// host+path URL (scheme-less on the wire) and the headers the CDN expects.
type DataStoreReqGetInfo struct {
	URL     string
	Headers map[string]string
	Size    uint32
	RootCA  []byte
}

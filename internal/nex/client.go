package nex

import "context"

// RankingClient is the Ranking protocol surface the harvester uses.
type RankingClient interface {
	// GetRanking enumerates one category. uniqueID and principalID are the
	// around-self cursor; both are zero for offset-mode calls.
	GetRanking(ctx context.Context, mode RankingMode, category uint32, order RankingOrderParam, uniqueID, principalID uint64) (*RankingResult, error)
}

// DataStoreClient is the DataStore protocol surface the harvester uses.
// The verbs past PrepareGetObject exist for the capability report only.
type DataStoreClient interface {
	SearchObject(ctx context.Context, param DataStoreSearchParam) ([]DataStoreMetaInfo, error)
	GetMetas(ctx context.Context, dataIDs []uint64, param DataStoreGetMetaParam) (*DataStoreMetasResult, error)
	GetMetasMultipleParam(ctx context.Context, params []DataStoreGetMetaParam) (*DataStoreMetasResult, error)
	PrepareGetObject(ctx context.Context, param DataStorePrepareGetParam) (*DataStoreReqGetInfo, error)

	GetRatings(ctx context.Context, dataIDs []uint64, accessPassword uint64) error
	GetSpecificMetaV1(ctx context.Context, dataIDs []uint64) error
	GetPasswordInfos(ctx context.Context, dataIDs []uint64) error
	GetObjectInfos(ctx context.Context, dataIDs []uint64) error
	PrepareGetObjectOrMetaBinary(ctx context.Context, param DataStorePrepareGetParam) error
	PrepareGetObjectV1(ctx context.Context, param DataStorePrepareGetParam) error
	SearchObjectLight(ctx context.Context, param DataStoreSearchParam) error
}

// Session is one authenticated, multiplexed channel to a game server. A
// session owns exactly one login and is never shared across workers.
type Session interface {
	Ranking() RankingClient
	DataStore() DataStoreClient
	Close() error
}

// AuthenticationInfo is the optional bearer-token login extension some
// titles require (ngs_version 2).
type AuthenticationInfo struct {
	Token      string
	NGSVersion uint32
}

// Credentials is everything needed to establish and authenticate a session.
type Credentials struct {
	Host      string
	Port      int
	PID       uint64
	Password  string
	AccessKey string
	Version   int
	// PRUDPVersion is 1 for the handheld transport, 0 otherwise.
	PRUDPVersion int
	AuthInfo     *AuthenticationInfo
}

// Dialer mints sessions. Implementations live outside this module; tests
// inject fakes.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, creds Credentials) (Session, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, creds Credentials) (Session, error) {
	return f(ctx, creds)
}

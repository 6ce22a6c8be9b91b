package programs

import "tada-core/internal/models"

// Category splits the catalog into bonding-curve (pre-migration) and
// AMM (post-migration) programs.
type Category string

const (
	PreMigration  Category = "pre-migration"
	PostMigration Category = "post-migration"
)

// Program is one supported on-chain program.
type Program struct {
	ID       string
	Address  string
	Category Category
}

// WSOLMint is the wrapped native token mint, used as the default quote mint.
const WSOLMint = "So11111111111111111111111111111111111111112"

// Catalog is the fixed set of supported programs. Process-lifetime constant.
var Catalog = []Program{
	{ID: "pump", Address: "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P", Category: PreMigration},
	{ID: "pumpswap", Address: "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA", Category: PostMigration},
	{ID: "meteora-dbc", Address: "dbcij3LWUppWqq96dh6gJWwBifmcGfLSB5D4DuSMaqN", Category: PreMigration},
	{ID: "meteora-damm-v2", Address: "cpamdpZCGKUy5JxQXB4dcpGPiikHawvSWAd6mEn1sGG", Category: PostMigration},
	{ID: "raydium-launchlab", Address: "LanMV9sAd7wArD4vJFi2qDdfnVhFxYSUg6eADduJ3uj", Category: PreMigration},
	{ID: "raydium-cpmm", Address: "CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C", Category: PostMigration},
}

// Aggregators maps known routing-program addresses to their source tag.
// First match in account-key order wins during source attribution.
var Aggregators = map[string]models.SourceType{
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4": models.SourceJupiter,
	"routeUGWgWzqBWFcrCfv8tritsqukccJPu3q5GPP3xS": models.SourceRaydium,
}

var (
	byID      = make(map[string]Program, len(Catalog))
	byAddress = make(map[string]Program, len(Catalog))
)

func init() {
	for _, p := range Catalog {
		byID[p.ID] = p
		byAddress[p.Address] = p
	}
}

// ByID looks a program up by symbolic id.
func ByID(id string) (Program, bool) {
	p, ok := byID[id]
	return p, ok
}

// ByAddress looks a program up by on-chain address.
func ByAddress(addr string) (Program, bool) {
	p, ok := byAddress[addr]
	return p, ok
}

// IDs returns all known program ids, catalog order.
func IDs() []string {
	ids := make([]string, 0, len(Catalog))
	for _, p := range Catalog {
		ids = append(ids, p.ID)
	}
	return ids
}

// AttributeSource scans accountKeys (in order) for a known aggregator
// address and returns the resulting source attribution. Direct if none.
func AttributeSource(accountKeys []string) models.EventSource {
	for _, key := range accountKeys {
		if tag, ok := Aggregators[key]; ok {
			return models.EventSource{Type: tag, OuterProgram: key}
		}
	}
	return models.EventSource{Type: models.SourceDirect}
}

package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// tokenABIJSON covers the token contract (ERC-20 plus supply events) and
// the treasury wallet contract that owns supply adjustments.
const tokenABIJSON = `[
	{"anonymous":false,"type":"event","name":"Transfer","inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"MintingHappened","inputs":[
		{"indexed":false,"name":"amount","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"BurningHappened","inputs":[
		{"indexed":false,"name":"amount","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"CirculationContracted","inputs":[
		{"indexed":false,"name":"amount","type":"uint256"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"readSupply","stateMutability":"view","inputs":[],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"adjustSupply","stateMutability":"nonpayable",
		"inputs":[{"name":"percent","type":"int256"}],"outputs":[]}
]`

// TokenABI is the parsed contract interface.
var TokenABI = mustParseABI(tokenABIJSON)

// Event topics (keccak of the canonical signature).
var (
	TopicTransfer    = TokenABI.Events["Transfer"].ID
	TopicMinted      = TokenABI.Events["MintingHappened"].ID
	TopicBurned      = TokenABI.Events["BurningHappened"].ID
	TopicContraction = TokenABI.Events["CirculationContracted"].ID
)

// TrackedTopics is the topic0 filter used for eth_getLogs.
func TrackedTopics() [][]common.Hash {
	return [][]common.Hash{{TopicTransfer, TopicMinted, TopicBurned, TopicContraction}}
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse token abi: %v", err))
	}
	return parsed
}

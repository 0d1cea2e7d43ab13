package contract

import (
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// Contract methods used by the gateway
const (
	methodCampaigns         = "campaigns"
	methodAddCampaignUpdate = "addCampaignUpdate"
	methodCreateCampaign    = "createCampaign"
)

// Events the reader decodes; logs are matched by the hash of these signatures
var requiredEvents = []struct {
	name      string
	signature string
}{
	{"DonationReceived", "DonationReceived(uint256,address,uint256,uint256)"},
	{"FundsDisbursed", "FundsDisbursed(uint256,address,uint256,uint256)"},
	{"CampaignUpdate", "CampaignUpdate(uint256,string,uint256)"},
}

// EtherFundABI is the canonical interface of the crowdfunding contract
const EtherFundABI = `[
  {
    "type": "function",
    "name": "campaigns",
    "stateMutability": "view",
    "inputs": [{"name": "campaignId", "type": "uint256"}],
    "outputs": [
      {"name": "owner", "type": "address"},
      {"name": "goal", "type": "uint256"},
      {"name": "raised", "type": "uint256"},
      {"name": "contributorCount", "type": "uint256"}
    ]
  },
  {
    "type": "function",
    "name": "addCampaignUpdate",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "campaignId", "type": "uint256"},
      {"name": "ipfsHash", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "createCampaign",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "minContribution", "type": "uint256"},
      {"name": "name", "type": "string"},
      {"name": "description", "type": "string"},
      {"name": "imageUrl", "type": "string"},
      {"name": "target", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "type": "event",
    "name": "DonationReceived",
    "anonymous": false,
    "inputs": [
      {"name": "campaignId", "type": "uint256", "indexed": true},
      {"name": "donor", "type": "address", "indexed": true},
      {"name": "amount", "type": "uint256", "indexed": false},
      {"name": "timestamp", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "FundsDisbursed",
    "anonymous": false,
    "inputs": [
      {"name": "campaignId", "type": "uint256", "indexed": true},
      {"name": "recipient", "type": "address", "indexed": true},
      {"name": "amount", "type": "uint256", "indexed": false},
      {"name": "timestamp", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "CampaignUpdate",
    "anonymous": false,
    "inputs": [
      {"name": "campaignId", "type": "uint256", "indexed": true},
      {"name": "ipfsHash", "type": "string", "indexed": false},
      {"name": "timestamp", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "CampaignCreated",
    "anonymous": false,
    "inputs": [
      {"name": "campaignId", "type": "uint256", "indexed": true},
      {"name": "owner", "type": "address", "indexed": true}
    ]
  }
]`

// ParseABI parses an ABI JSON document and checks it has everything the gateway calls
func ParseABI(raw string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Failed to parse ABI", err.Error())
	}

	for _, name := range []string{methodCampaigns, methodAddCampaignUpdate, methodCreateCampaign} {
		if _, ok := parsed.Methods[name]; !ok {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "ABI is missing method", name)
		}
	}
	for _, want := range requiredEvents {
		event, ok := parsed.Events[want.name]
		if !ok {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "ABI is missing event", want.name)
		}
		if event.ID.Hex() != utils.GetEventSignature(want.signature) {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "ABI event has an unexpected signature",
				event.Sig+", want "+want.signature)
		}
	}
	return &parsed, nil
}

// LoadABI reads an ABI from path, or returns the canonical ABI when path is empty
func LoadABI(path string) (*abi.ABI, error) {
	if path == "" {
		return ParseABI(EtherFundABI)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Failed to read ABI file", err.Error())
	}
	return ParseABI(string(raw))
}

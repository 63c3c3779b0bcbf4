package domain

import "fmt"

// Reserved, non-parameterized bus topics.
const (
	TopicSystemControl          = "system-control"
	TopicTradeOrders             = "trade-orders"
	TopicTradeConfirmations      = "trade-confirmations"
	TopicBaselineTradeIdeas      = "baseline-trade-ideas"
	TopicMycelialTradeIdeas      = "mycelial-trade-ideas"
	TopicSynthesizedTradeLog     = "synthesized-trade-log"
	TopicSystemBuildRequest      = "system-build-request"
	TopicProspectingConsensus    = "prospecting-consensus"
	TopicPatternValidationReq    = "pattern-validation-request"
	TopicPatternValidationResult = "pattern-validation-result"
	TopicPatternNarrative        = "pattern-narrative"
	TopicSystemHibernation       = "system-hibernation"
)

// Parameterized topic builders. The bus treats topics as opaque strings; no
// wildcards, no namespacing beyond the "prefix:param" convention.

func MarketDataTopic(pair string) string { return fmt.Sprintf("market-data:%s", pair) }
func CodeDataTopic(lang string) string   { return fmt.Sprintf("code-data:%s", lang) }
func LogisticsDataTopic(region string) string { return fmt.Sprintf("logistics-data:%s", region) }
func GovtDataTopic(region string) string      { return fmt.Sprintf("govt-data:%s", region) }
func CorpDataTopic(sector string) string      { return fmt.Sprintf("corp-data:%s", sector) }

func BaselineTradeIdeasTopic(pair string) string {
	return fmt.Sprintf("baseline-trade-ideas:%s", pair)
}

// ProspectingTeam identifies one of the three prospector teams (§4.11).
type ProspectingTeam string

const (
	TeamHFT      ProspectingTeam = "HFT"
	TeamDayTrade ProspectingTeam = "DayTrade"
	TeamSwing    ProspectingTeam = "Swing"
)

func ProspectingProposalsTopic(team ProspectingTeam) string {
	return fmt.Sprintf("prospecting-proposals:%s", team)
}

// PolicyKey returns the shared-state key for an agent's latest belief state.
func PolicyKey(agentName string) string { return fmt.Sprintf("policy:%s", agentName) }

// PolicyKeyPrefix is the shared-state prefix the archiver scans.
const PolicyKeyPrefix = "policy:"

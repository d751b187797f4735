package classifier

// keywordTier assigns a fixed complexity weight to a curated keyword tier.
type keywordTier int

const (
	tierSimple keywordTier = iota
	tierModerate
	tierComplex
	tierAdvanced
)

var tierWeight = map[keywordTier]float64{
	tierSimple:   0.2,
	tierModerate: 0.4,
	tierComplex:  0.7,
	tierAdvanced: 0.9,
}

// keywordTiers is the curated keyword→tier map driving the 0.30-weighted
// keyword-tier sub-score.
var keywordTiers = map[string]keywordTier{
	"hello": tierSimple, "hi": tierSimple, "thanks": tierSimple, "what is": tierSimple,
	"define": tierSimple, "list": tierSimple, "yes": tierSimple, "no": tierSimple,
	"summarize": tierModerate, "compare": tierModerate, "explain": tierModerate,
	"describe": tierModerate, "convert": tierModerate, "translate": tierModerate,
	"write a function": tierModerate, "fix": tierModerate,
	"analyze": tierComplex, "design": tierComplex, "implement": tierComplex,
	"debug": tierComplex, "refactor": tierComplex, "architecture": tierComplex,
	"algorithm": tierComplex, "optimize": tierComplex,
	"prove": tierAdvanced, "formal verification": tierAdvanced, "distributed system": tierAdvanced,
	"concurrency": tierAdvanced, "research": tierAdvanced, "novel": tierAdvanced,
	"from first principles": tierAdvanced,
}

// reasoningIndicators each add 0.10 to the reasoning sub-score.
var reasoningIndicators = []string{
	"why", "how", "analyze", "step by step", "explain", "reason", "because",
	"compare", "evaluate", "justify", "walk me through",
}

// multiStepIndicators additionally add 0.15 each.
var multiStepIndicators = []string{
	"step by step", "first", "then", "finally", "multiple steps", "phases",
}

// technicalDomainKeywords contribute +0.2 to the topic sub-score. The three
// domain lists below feed only the score; topic tags come from topicRules.
var technicalDomainKeywords = []string{
	"code", "function", "algorithm", "database", "api", "server", "bug",
	"compile", "deploy", "architecture", "software", "programming",
}

// creativeDomainKeywords contribute +0.1 to the topic sub-score.
var creativeDomainKeywords = []string{
	"story", "poem", "creative", "imagine", "fiction", "character", "plot",
}

// businessDomainKeywords contribute +0.15 to the topic sub-score.
var businessDomainKeywords = []string{
	"business", "revenue", "strategy", "market", "customer", "budget", "roi",
}

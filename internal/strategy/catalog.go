package strategy

import (
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/model"
)

// Kind separates the two strategy families. Dual confirmation requires one
// signal from each family.
type Kind string

const (
	KindForex   Kind = "forex"
	KindPattern Kind = "pattern"
)

// EvalFunc computes a directional signal for the window's last closed candle.
// It must be pure: no side effects, no broker access.
type EvalFunc func(w *model.Window) model.Direction

// Spec describes one catalog entry.
type Spec struct {
	Name     string
	Kind     Kind
	Evaluate EvalFunc
}

// Catalog is the closed, priority-ordered set of known strategies. Position
// in this slice is the priority used to resolve same-candle conflicts.
var Catalog = []Spec{
	{Name: "ma_crossover", Kind: KindForex, Evaluate: forexMACrossover},
	{Name: "momentum_rsi_macd", Kind: KindForex, Evaluate: forexMomentumRSIMACD},
	{Name: "bollinger_breakout", Kind: KindForex, Evaluate: forexBollingerBreakout},
	{Name: "momentum_burst", Kind: KindForex, Evaluate: forexMomentumBurst},
	{Name: "hammer", Kind: KindPattern, Evaluate: patternHammer},
	{Name: "shooting_star", Kind: KindPattern, Evaluate: patternShootingStar},
	{Name: "marubozu", Kind: KindPattern, Evaluate: patternMarubozu},
	{Name: "dragonfly_doji", Kind: KindPattern, Evaluate: patternDragonflyDoji},
	{Name: "gravestone_doji", Kind: KindPattern, Evaluate: patternGravestoneDoji},
	{Name: "engulfing", Kind: KindPattern, Evaluate: patternEngulfing},
	{Name: "piercing_line", Kind: KindPattern, Evaluate: patternPiercingLine},
	{Name: "dark_cloud_cover", Kind: KindPattern, Evaluate: patternDarkCloudCover},
	{Name: "morning_star", Kind: KindPattern, Evaluate: patternMorningStar},
	{Name: "evening_star", Kind: KindPattern, Evaluate: patternEveningStar},
	{Name: "three_white_soldiers", Kind: KindPattern, Evaluate: patternThreeWhiteSoldiers},
	{Name: "three_black_crows", Kind: KindPattern, Evaluate: patternThreeBlackCrows},
}

// ByName looks up a catalog entry.
func ByName(name string) (Spec, bool) {
	for _, s := range Catalog {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// Enabled returns the catalog entries switched on in the configuration,
// preserving catalog priority order.
func Enabled(cfg *config.Config) []Spec {
	var out []Spec
	for _, s := range Catalog {
		if cfg.Strategy(s.Name).Enabled {
			out = append(out, s)
		}
	}
	return out
}

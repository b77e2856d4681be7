package intent

import "strings"

// Action is the closed set of things the assistant can do with a user message.
// Anything a classifier returns outside this set is a parse failure, never a
// new behavior.
type Action string

const (
	ActionGetPrice     Action = "GET_STOCK_PRICE"
	ActionBuy          Action = "BUY_STOCK"
	ActionSell         Action = "SELL_STOCK"
	ActionGetPortfolio Action = "GET_PORTFOLIO"
	ActionGeneral      Action = "GENERAL"
)

func (a Action) String() string { return string(a) }

func (a Action) Valid() bool {
	switch a {
	case ActionGetPrice, ActionBuy, ActionSell, ActionGetPortfolio, ActionGeneral:
		return true
	default:
		return false
	}
}

// IsTrade reports whether the action places an order
func (a Action) IsTrade() bool {
	return a == ActionBuy || a == ActionSell
}

func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if a.Valid() {
		return a, true
	}
	return "", false
}

package models

import "fmt"

// Action: вердикт аналитика по символу.
type Action int

const (
	ActionNone Action = iota
	ActionHold
	ActionBuy
	ActionSell
	ActionStrongBuy
	ActionStrongSell
	ActionPanicSell
	ActionTakeProfitsSell
	ActionJumpBuy
)

var actionNames = map[Action]string{
	ActionNone:            "None",
	ActionHold:            "Hold",
	ActionBuy:             "Buy",
	ActionSell:            "Sell",
	ActionStrongBuy:       "StrongBuy",
	ActionStrongSell:      "StrongSell",
	ActionPanicSell:       "PanicSell",
	ActionTakeProfitsSell: "TakeProfitsSell",
	ActionJumpBuy:         "JumpBuy",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return ActionNone, fmt.Errorf("unknown action %q", s)
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Action) IsBuy() bool {
	switch a {
	case ActionBuy, ActionStrongBuy, ActionJumpBuy:
		return true
	}
	return false
}

func (a Action) IsSell() bool {
	switch a {
	case ActionSell, ActionStrongSell, ActionPanicSell, ActionTakeProfitsSell:
		return true
	}
	return false
}

// Package ussd holds the guided USSD menu: the screen table, the tokenizer
// for the cumulative input string and the traversal that replays it.
package ussd

import (
	"errors"
	"fmt"
	"strings"

	"harvestlink/internal/domain"
)

type ScreenID string

// Action is a terminal outcome of the menu.
type Action string

const (
	ActionSubmit        Action = "submit_to_oracle"
	ActionPriceForecast Action = "price_forecast"
	ActionFindBuyers    Action = "find_buyers"
	ActionAdvice        Action = "advice"
	ActionRegister      Action = "register"
	ActionBenefits      Action = "benefits"
	ActionExit          Action = "exit"
)

// Field names the part of the query a screen fills in.
type Field string

const (
	FieldNone     Field = ""
	FieldCrop     Field = "crop"
	FieldQuantity Field = "quantity"
	FieldLocation Field = "location"
	FieldStorage  Field = "storage"
	FieldWeather  Field = "weather"
	FieldTopic    Field = "topic"
)

// BackKey pops one screen on every screen that allows going back.
const BackKey = "0"

// Choice is one numbered entry of a screen. Exactly one of Next and Action is set.
type Choice struct {
	Key    string
	Label  string
	Field  Field
	Value  string
	Next   ScreenID
	Action Action
}

// InputSpec describes a free-form entry screen.
type InputSpec struct {
	Field Field
	Hint  string
	Next  ScreenID
}

// Screen is immutable once the graph is built.
type Screen struct {
	ID      ScreenID
	Prompt  string
	Choices []Choice
	Input   *InputSpec
	Back    bool
}

func (s *Screen) choice(key string) (Choice, bool) {
	for _, c := range s.Choices {
		if c.Key == key {
			return c, true
		}
	}
	return Choice{}, false
}

// Render returns the screen text. "{crop}" in the prompt is replaced with the
// crop chosen so far.
func (s *Screen) Render(q domain.HarvestQuery) string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(s.Prompt, "{crop}", q.Crop))
	if s.Input != nil && s.Input.Hint != "" {
		b.WriteString("\n")
		b.WriteString(s.Input.Hint)
	}
	for _, c := range s.Choices {
		fmt.Fprintf(&b, "\n%s. %s", c.Key, c.Label)
	}
	if s.Back {
		fmt.Fprintf(&b, "\n%s. Back", BackKey)
	}
	return b.String()
}

type Status int

const (
	StatusContinue Status = iota
	StatusTerminal
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "continue"
	case StatusTerminal:
		return "terminal"
	case StatusInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Failure tells apart the two ways a token can be rejected.
type Failure string

const (
	FailureNone            Failure = ""
	FailureInvalidChoice   Failure = "invalid_choice"
	FailureInvalidQuantity Failure = "invalid_quantity"
)

// Result is the outcome of replaying a token sequence from the root.
type Result struct {
	Status Status
	// Screen is the screen to render on StatusContinue and the screen the
	// traversal stopped on otherwise.
	Screen *Screen
	Action Action
	Query  domain.HarvestQuery
	Depth  int
	// Consumed counts accepted tokens. On StatusInvalid it is the index of
	// the rejected token.
	Consumed int
	Failure  Failure
	Token    string
}

// Graph is a fixed tree of screens rooted at one screen.
type Graph struct {
	root    ScreenID
	screens map[ScreenID]*Screen
}

// NewGraph validates and indexes the screens.
func NewGraph(root ScreenID, screens ...*Screen) (*Graph, error) {
	g := &Graph{root: root, screens: make(map[ScreenID]*Screen, len(screens))}
	for _, s := range screens {
		if _, dup := g.screens[s.ID]; dup {
			return nil, fmt.Errorf("duplicate screen %s", s.ID)
		}
		g.screens[s.ID] = s
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks that every declared choice has exactly one known outcome.
func (g *Graph) Validate() error {
	root, ok := g.screens[g.root]
	if !ok {
		return fmt.Errorf("root screen %s not defined", g.root)
	}
	if root.Back {
		return errors.New("root screen cannot go back")
	}
	for id, s := range g.screens {
		if s.Input != nil && len(s.Choices) > 0 {
			return fmt.Errorf("screen %s mixes free input and choices", id)
		}
		if s.Input != nil {
			if _, ok := g.screens[s.Input.Next]; !ok {
				return fmt.Errorf("screen %s input leads to unknown screen %s", id, s.Input.Next)
			}
			continue
		}
		if len(s.Choices) == 0 {
			return fmt.Errorf("screen %s has no choices", id)
		}
		seen := map[string]bool{}
		for _, c := range s.Choices {
			if c.Key == "" {
				return fmt.Errorf("screen %s has a choice without key", id)
			}
			if seen[c.Key] {
				return fmt.Errorf("screen %s repeats key %s", id, c.Key)
			}
			seen[c.Key] = true
			if s.Back && c.Key == BackKey {
				return fmt.Errorf("screen %s uses the back key %s for a choice", id, BackKey)
			}
			switch {
			case c.Action != "" && c.Next != "":
				return fmt.Errorf("screen %s choice %s has both next screen and action", id, c.Key)
			case c.Action == "" && c.Next == "":
				return fmt.Errorf("screen %s choice %s has no outcome", id, c.Key)
			case c.Next != "":
				if _, ok := g.screens[c.Next]; !ok {
					return fmt.Errorf("screen %s choice %s leads to unknown screen %s", id, c.Key, c.Next)
				}
			}
		}
	}
	return nil
}

func (g *Graph) Root() *Screen {
	return g.screens[g.root]
}

func (g *Graph) Screen(id ScreenID) (*Screen, bool) {
	s, ok := g.screens[id]
	return s, ok
}

type frame struct {
	screen *Screen
	query  domain.HarvestQuery
}

// Resolve replays tokens from the root. It stops at the first rejected token
// and never looks at the tokens after it. Resolve has no side effects.
func (g *Graph) Resolve(tokens []string) Result {
	stack := []frame{{screen: g.Root()}}
	for i, tok := range tokens {
		top := stack[len(stack)-1]
		if top.screen.Back && tok == BackKey {
			stack = stack[:len(stack)-1]
			continue
		}
		if in := top.screen.Input; in != nil {
			v, err := ParseQuantity(tok)
			if err != nil {
				return g.invalid(stack, i, tok, FailureInvalidQuantity)
			}
			q := top.query
			setField(&q, in.Field, "", v)
			stack = append(stack, frame{screen: g.screens[in.Next], query: q})
			continue
		}
		c, ok := top.screen.choice(tok)
		if !ok {
			return g.invalid(stack, i, tok, FailureInvalidChoice)
		}
		q := top.query
		setField(&q, c.Field, c.Value, 0)
		if c.Action != "" {
			if i != len(tokens)-1 {
				// nothing follows a terminal screen
				return g.invalid(stack, i+1, tokens[i+1], FailureInvalidChoice)
			}
			return Result{
				Status:   StatusTerminal,
				Screen:   top.screen,
				Action:   c.Action,
				Query:    q,
				Depth:    len(stack) - 1,
				Consumed: i + 1,
			}
		}
		stack = append(stack, frame{screen: g.screens[c.Next], query: q})
	}
	top := stack[len(stack)-1]
	return Result{
		Status:   StatusContinue,
		Screen:   top.screen,
		Query:    top.query,
		Depth:    len(stack) - 1,
		Consumed: len(tokens),
	}
}

func (g *Graph) invalid(stack []frame, idx int, tok string, f Failure) Result {
	top := stack[len(stack)-1]
	return Result{
		Status:   StatusInvalid,
		Screen:   top.screen,
		Query:    top.query,
		Depth:    len(stack) - 1,
		Consumed: idx,
		Failure:  f,
		Token:    tok,
	}
}

func setField(q *domain.HarvestQuery, f Field, value string, num float64) {
	switch f {
	case FieldCrop:
		q.Crop = value
	case FieldQuantity:
		q.Quantity = num
	case FieldLocation:
		q.Location = value
	case FieldStorage:
		q.Storage = value
	case FieldWeather:
		q.Weather = value
	case FieldTopic:
		q.Topic = value
	}
}

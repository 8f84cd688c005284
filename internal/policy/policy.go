// Package policy decides who may do what to a chat.
//
// Evaluate is a pure function: callers load the chat and the actor, then ask
// before every mutating operation. A nil result allows the action; a
// *Denial names the rule that refused it.
package policy

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/models"
)

type Action string

const (
	ActionEditMetadata  Action = "edit-metadata"
	ActionDelete        Action = "delete"
	ActionLeave         Action = "leave"
	ActionAddMembers    Action = "add-members"
	ActionRemoveMembers Action = "remove-members"
	ActionPin           Action = "pin"
	ActionUnpin         Action = "unpin"
	ActionSendMessage   Action = "send-message"
	ActionManageGroup   Action = "manage-group"
)

// Rule identifies which check refused an action.
type Rule string

const (
	RulePrivateImmutable   Rule = "private_immutable"
	RuleNotCreator         Rule = "not_creator"
	RuleNotTeacher         Rule = "not_teacher"
	RuleRemoveSelf         Rule = "remove_self"
	RuleCreatorCannotLeave Rule = "creator_cannot_leave"
	RuleNotMember          Rule = "not_member"
	RuleNotCurator         Rule = "not_curator"
)

// Actor is the user performing the action.
type Actor struct {
	ID        uuid.UUID
	IsTeacher bool
}

// Request carries everything Evaluate looks at. Targets is only read for
// ActionRemoveMembers.
type Request struct {
	Actor   Actor
	Chat    *models.Chat
	Action  Action
	Targets []uuid.UUID
}

type Denial struct {
	Action Action
	Rule   Rule
}

var phrases = map[Action]string{
	ActionEditMetadata:  "edit this chat",
	ActionDelete:        "delete this chat",
	ActionLeave:         "leave this chat",
	ActionAddMembers:    "add users to this chat",
	ActionRemoveMembers: "remove users from this chat",
	ActionPin:           "pin messages in this chat",
	ActionUnpin:         "unpin messages in this chat",
	ActionSendMessage:   "send messages to this chat",
	ActionManageGroup:   "manage this group",
}

func (d *Denial) Error() string {
	switch d.Rule {
	case RuleRemoveSelf:
		return "You cannot remove yourself from the chat, leave it instead."
	case RuleCreatorCannotLeave:
		return "The creator cannot leave the chat, delete it instead."
	case RuleNotMember:
		return fmt.Sprintf("You are not a member of this chat, so you are not allowed to %s.", phrases[d.Action])
	case RuleNotTeacher:
		return fmt.Sprintf("Only teachers are allowed to %s.", phrases[d.Action])
	}
	return fmt.Sprintf("You are not allowed to %s.", phrases[d.Action])
}

func deny(a Action, r Rule) error {
	return &Denial{Action: a, Rule: r}
}

// Evaluate applies the chat policy table:
//
//	private  every management action is denied
//	group    only the creator may manage the chat
//	diploma  only a teacher who is also the creator may manage the chat
//
// send-message only requires membership. leave is open to members except
// the creator, is closed on private chats and needs a teacher on diploma
// chats.
func Evaluate(req Request) error {
	chat := req.Chat
	actor := req.Actor

	switch req.Action {
	case ActionSendMessage:
		if !chat.HasMember(actor.ID) {
			return deny(req.Action, RuleNotMember)
		}
		return nil

	case ActionLeave:
		if chat.Type == models.ChatPrivate {
			return deny(req.Action, RulePrivateImmutable)
		}
		if !chat.HasMember(actor.ID) {
			return deny(req.Action, RuleNotMember)
		}
		if chat.Type == models.ChatDiploma && !actor.IsTeacher {
			return deny(req.Action, RuleNotTeacher)
		}
		if chat.IsCreator(actor.ID) {
			return deny(req.Action, RuleCreatorCannotLeave)
		}
		return nil

	case ActionEditMetadata, ActionDelete, ActionAddMembers,
		ActionRemoveMembers, ActionPin, ActionUnpin:
		if err := manage(req.Action, actor, chat); err != nil {
			return err
		}
		if req.Action == ActionRemoveMembers {
			for _, id := range req.Targets {
				if id == actor.ID {
					return deny(req.Action, RuleRemoveSelf)
				}
			}
		}
		return nil
	}

	return fmt.Errorf("policy: unknown action %q", req.Action)
}

func manage(a Action, actor Actor, chat *models.Chat) error {
	switch chat.Type {
	case models.ChatPrivate:
		return deny(a, RulePrivateImmutable)
	case models.ChatDiploma:
		if !actor.IsTeacher {
			return deny(a, RuleNotTeacher)
		}
	}
	if !chat.IsCreator(actor.ID) {
		return deny(a, RuleNotCreator)
	}
	return nil
}

// EvaluateGroup decides whether actor may create (curator == nil) or edit an
// academic group. Only teachers may create groups; only the curator may edit.
func EvaluateGroup(actor Actor, curator *uuid.UUID) error {
	if !actor.IsTeacher {
		return deny(ActionManageGroup, RuleNotTeacher)
	}
	if curator != nil && *curator != actor.ID {
		return deny(ActionManageGroup, RuleNotCurator)
	}
	return nil
}

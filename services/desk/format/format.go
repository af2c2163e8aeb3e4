// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package format turns tool results into the single-language text the
// dialogue runtime speaks back to the caller.
//
// Rules:
//   - Unknown language renders Arabic.
//   - Replies never mix scripts. Values in the other script (names,
//     titles, alphanumeric ids) are replaced by generic phrasing.
//   - AlreadyInFlight and discarded results are suppressed.
//   - Collaborator failures render a generic "try again".
//   - Anything without a friendlier template renders "information
//     unavailable".
package format

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/language"
)

// Message is one reply to speak.
type Message struct {
	Language language.Language `json:"language"`
	Text     string            `json:"text"`

	// Suppressed means nothing should be spoken for this result.
	Suppressed bool `json:"suppressed,omitempty"`
}

// maxListed bounds how many vehicles or tickets are read out.
const maxListed = 3

// Render formats a tool result in lang.
//
// Thread Safety: Pure function.
func Render(lang language.Language, res dispatch.ToolResult) Message {
	lang = replyLanguage(lang)
	if res.Discarded || res.Reason == dispatch.ReasonAlreadyInFlight {
		return Message{Language: lang, Suppressed: true}
	}
	t := phrases[lang]

	var text string
	if res.OK() {
		text = renderSuccess(t, lang, res.Payload)
	} else {
		text = renderFailure(t, lang, res)
	}
	if text == "" || mixed(lang, text) {
		text = t.unavailable
	}
	return Message{Language: lang, Text: text}
}

// Greeting returns the opening line of a call.
func Greeting(lang language.Language) Message {
	lang = replyLanguage(lang)
	return Message{Language: lang, Text: phrases[lang].greeting}
}

// Unavailable returns the fixed "information unavailable" reply.
func Unavailable(lang language.Language) Message {
	lang = replyLanguage(lang)
	return Message{Language: lang, Text: phrases[lang].unavailable}
}

func replyLanguage(lang language.Language) language.Language {
	if lang == language.English {
		return language.English
	}
	return language.Arabic
}

func renderFailure(t phraseSet, lang language.Language, res dispatch.ToolResult) string {
	if res.Reason.Transport() {
		return t.tryAgain
	}
	switch res.Reason {
	case dispatch.ReasonInvalidArguments:
		labels := fieldLabels(lang, res.Fields)
		if len(labels) == 0 {
			return t.needMoreInfo
		}
		return fmt.Sprintf(t.needFields, strings.Join(labels, t.listSep))
	case dispatch.ReasonIdentityNotResolved:
		return t.noPhone
	case dispatch.ReasonNotIdentified:
		return t.notIdentified
	case dispatch.ReasonNoCatalogMatch:
		if res.Tool == dispatch.ToolSendLocation {
			return t.noBranch
		}
		return t.noModel
	}
	return t.unavailable
}

func renderSuccess(t phraseSet, lang language.Language, payload dispatch.Payload) string {
	switch p := payload.(type) {
	case dispatch.ClientLookup:
		if !p.Found || p.Client == nil {
			return t.clientNotFound
		}
		if name := inScript(lang, p.Client.FirstName); name != "" {
			return fmt.Sprintf(t.clientFoundNamed, name)
		}
		return t.clientFound

	case dispatch.ClientCreated:
		if name := inScript(lang, p.Client.FirstName); name != "" {
			return fmt.Sprintf(t.clientCreatedNamed, name)
		}
		return t.clientCreated

	case dispatch.VehicleList:
		return renderVehicles(t, lang, p)

	case dispatch.CarImageSent:
		name := p.Entry.NameAr
		if lang == language.English {
			name = p.Entry.NameEn
		}
		if name = inScript(lang, name); name == "" {
			return t.imageSent
		}
		return fmt.Sprintf(t.imageSentNamed, name)

	case dispatch.LocationSent:
		name := p.Branch.NameAr
		if lang == language.English {
			name = p.Branch.NameEn
		}
		if name = inScript(lang, name); name == "" {
			return t.locationSent
		}
		return fmt.Sprintf(t.locationSentNamed, name)

	case dispatch.TicketCreated:
		id := inScript(lang, p.Ticket.ID)
		if id == "" {
			return t.ticketCreated
		}
		return fmt.Sprintf(t.ticketCreatedID, id)

	case dispatch.TicketList:
		return renderTickets(t, lang, p)
	}
	return ""
}

func renderVehicles(t phraseSet, lang language.Language, p dispatch.VehicleList) string {
	if len(p.Vehicles) == 0 {
		return t.noVehicles
	}

	var names []string
	for _, v := range p.Vehicles {
		if name := inScript(lang, v.Title()); name != "" {
			names = append(names, name)
		}
		if len(names) == maxListed {
			break
		}
	}

	var b strings.Builder
	if len(names) == 0 {
		fmt.Fprintf(&b, t.vehicleCount, len(p.Vehicles))
	} else {
		fmt.Fprintf(&b, t.vehicleList, len(p.Vehicles), strings.Join(names, t.listSep))
	}
	if p.ImagesSent > 0 {
		b.WriteString(" ")
		b.WriteString(t.vehicleImagesSent)
	}
	return b.String()
}

func renderTickets(t phraseSet, lang language.Language, p dispatch.TicketList) string {
	if len(p.Tickets) == 0 {
		return t.noTickets
	}

	var b strings.Builder
	fmt.Fprintf(&b, t.ticketCount, len(p.Tickets))
	for i, tk := range p.Tickets {
		if i == maxListed {
			break
		}
		status := statusLabel(lang, tk.Status)
		if title := inScript(lang, tk.Title); title != "" {
			fmt.Fprintf(&b, " "+t.ticketLine, title, status)
		} else {
			fmt.Fprintf(&b, " "+t.ticketLineUntitled, status)
		}
	}
	return b.String()
}

// inScript returns s if it may appear in a reply in lang.
func inScript(lang language.Language, s string) string {
	s = strings.TrimSpace(s)
	if mixed(lang, s) {
		return ""
	}
	return s
}

// mixed reports whether s carries letters from the script lang excludes.
func mixed(lang language.Language, s string) bool {
	if lang == language.English {
		return language.ContainsArabic(s)
	}
	return language.ContainsLatin(s)
}

func fieldLabels(lang language.Language, fields []string) []string {
	labels := make([]string, 0, len(fields))
	for _, f := range fields {
		if l, ok := fieldNames[lang][f]; ok {
			labels = append(labels, l)
		}
	}
	return labels
}

func statusLabel(lang language.Language, status string) string {
	if l, ok := statusNames[lang][strings.ToLower(status)]; ok {
		return l
	}
	return statusNames[lang]["unknown"]
}

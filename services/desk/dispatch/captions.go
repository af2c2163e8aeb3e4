// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"strings"

	"github.com/AleutianAI/voicedesk/services/desk/catalog"
	"github.com/AleutianAI/voicedesk/services/desk/crm"
	"github.com/AleutianAI/voicedesk/services/desk/language"
)

// WhatsApp message bodies. Each is written in exactly one language; names
// and colors in the other script are left out. Plates, VINs and map links
// are identifiers and pass through.

func carImageCaption(lang language.Language, e catalog.Entry, override string) string {
	if lang == language.English {
		desc := e.DescriptionEn
		if override != "" && !language.ContainsArabic(override) {
			desc = override
		}
		return joinLines("🚗 *"+e.NameEn+"*", "", desc, "", "✨ See the image above")
	}
	desc := e.Description
	if override != "" && language.Detect(override) == language.Arabic {
		desc = override
	}
	return joinLines("🚗 *"+e.NameAr+"*", "", desc, "", "✨ شوف الصورة فوق")
}

func vehicleCaption(lang language.Language, v crm.Vehicle) string {
	if lang == language.English {
		return joinLines(
			"🚗 *This is your Toyota in our records:*",
			"",
			"✨ *"+orDefault(latinOnly(v.Title()), "Toyota")+"*",
			field("🎨 Color: ", latinOnly(v.Color)),
			field("🔢 License Plate: ", latinOnly(v.LicensePlate)),
			field("🔍 VIN: ", latinOnly(v.VIN)),
			"",
			"🔧 Ready to serve you anytime!",
		)
	}
	return joinLines(
		"🚗 *هذه سيارتك تويوتا في سجلاتنا:*",
		"",
		"✨ *"+orDefault(arabicOnly(v.Title()), "تويوتا")+"*",
		field("🎨 اللون: ", arabicOnly(v.Color)),
		field("🔢 رقم اللوحة: ", v.LicensePlate),
		field("🔍 رقم الهيكل: ", v.VIN),
		"",
		"🔧 جاهزين لخدمتك في أي وقت!",
	)
}

func locationText(lang language.Language, b catalog.Branch) string {
	if lang == language.English {
		return joinLines(
			"📍 "+b.NameEn,
			"",
			"📧 Address:",
			b.AddressEn,
			"",
			"📞 Contact:",
			b.Contact,
			"",
			"🗺️ Location on Map:",
			b.MapsURL,
			"",
			field("🕒 Working Hours: ", b.HoursEn),
		)
	}
	return joinLines(
		"📍 "+b.NameAr,
		"",
		"📧 العنوان:",
		b.AddressAr,
		"",
		"📞 التواصل:",
		b.Contact,
		"",
		"🗺️ الموقع على الخريطة:",
		b.MapsURL,
		"",
		field("🕒 مواعيد العمل: ", b.HoursAr),
	)
}

// field returns label+value, or "" when value is empty.
func field(label, value string) string {
	if value == "" {
		return ""
	}
	return label + value
}

// joinLines joins lines with newlines, dropping empty content lines but
// keeping single blank separators.
func joinLines(lines ...string) string {
	var b strings.Builder
	blank := false
	for _, l := range lines {
		if l == "" {
			blank = b.Len() > 0
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
			if blank {
				b.WriteByte('\n')
			}
		}
		blank = false
		b.WriteString(l)
	}
	return b.String()
}

// latinOnly returns s, or "" if s contains Arabic script.
func latinOnly(s string) string {
	if language.ContainsArabic(s) {
		return ""
	}
	return s
}

// arabicOnly returns s, or "" if s contains Latin letters.
func arabicOnly(s string) string {
	if language.ContainsLatin(s) {
		return ""
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package format

import "github.com/AleutianAI/voicedesk/services/desk/language"

type phraseSet struct {
	greeting    string
	unavailable string
	tryAgain    string
	listSep     string

	needMoreInfo  string
	needFields    string
	noPhone       string
	notIdentified string
	noModel       string
	noBranch      string

	clientFound        string
	clientFoundNamed   string
	clientNotFound     string
	clientCreated      string
	clientCreatedNamed string

	noVehicles        string
	vehicleCount      string
	vehicleList       string
	vehicleImagesSent string

	imageSent         string
	imageSentNamed    string
	locationSent      string
	locationSentNamed string

	ticketCreated      string
	ticketCreatedID    string
	noTickets          string
	ticketCount        string
	ticketLine         string
	ticketLineUntitled string
}

var phrases = map[language.Language]phraseSet{
	language.Arabic: {
		greeting:    "السلام عليكم ورحمة الله وبركاته، حياك الله في تويوتا الكويت، كيف أقدر أخدمك اليوم؟",
		unavailable: "عذراً، هذه المعلومة غير متوفرة حالياً.",
		tryAgain:    "صار عندنا خلل بسيط، ممكن نحاول مرة ثانية؟",
		listSep:     "، ",

		needMoreInfo:  "أحتاج بعض المعلومات الإضافية عشان أكمل.",
		needFields:    "أحتاج منك: %s.",
		noPhone:       "ما قدرت أحدد رقم هاتفك، ممكن تعطيني رقمك؟",
		notIdentified: "أحتاج أتعرف عليك أول، ممكن رقم هاتفك المسجل عندنا؟",
		noModel:       "ما لقيت هذا الموديل عندنا، ممكن توضح لي اسم السيارة؟",
		noBranch:      "ما لقيت فرع بهذا النوع، تبي موقع المعرض؟",

		clientFound:        "حياك الله! لقيت بياناتك، كيف أقدر أخدمك؟",
		clientFoundNamed:   "حياك الله يا %s! لقيت بياناتك، كيف أقدر أخدمك؟",
		clientNotFound:     "ما لقيت حساب مسجل بهذا الرقم. أقدر أسجلك كعميل جديد، ممكن اسمك الكامل؟",
		clientCreated:      "تم تسجيلك بنجاح، حياك الله في تويوتا.",
		clientCreatedNamed: "تم تسجيلك بنجاح يا %s، حياك الله في تويوتا.",

		noVehicles:        "ما لقيت سيارات مسجلة باسمك.",
		vehicleCount:      "عندك %d سيارة مسجلة عندنا.",
		vehicleList:       "عندك %d سيارة مسجلة عندنا: %s.",
		vehicleImagesSent: "وأرسلت لك صورها على الواتساب.",

		imageSent:         "أرسلت لك الصورة على الواتساب.",
		imageSentNamed:    "أرسلت لك صورة %s على الواتساب.",
		locationSent:      "أرسلت لك الموقع على الواتساب.",
		locationSentNamed: "أرسلت لك موقع %s على الواتساب.",

		ticketCreated:      "تم فتح طلب الخدمة، وبنتواصل معك قريباً.",
		ticketCreatedID:    "تم فتح طلب الخدمة رقم %s، وبنتواصل معك قريباً.",
		noTickets:          "ما عندك طلبات خدمة حالياً.",
		ticketCount:        "عندك %d طلب خدمة.",
		ticketLine:         "%s: %s.",
		ticketLineUntitled: "طلب %s.",
	},
	language.English: {
		greeting:    "Hello and welcome to Toyota Kuwait. How can I help you today?",
		unavailable: "Sorry, that information isn't available right now.",
		tryAgain:    "Something went wrong on our side. Could we try that again?",
		listSep:     ", ",

		needMoreInfo:  "I need a bit more information to continue.",
		needFields:    "I still need your %s.",
		noPhone:       "I couldn't find your phone number. Could you tell me your number?",
		notIdentified: "I need to identify you first. What is your registered phone number?",
		noModel:       "I couldn't find that model. Could you tell me the car name again?",
		noBranch:      "I couldn't find a branch of that type. Would you like the showroom location?",

		clientFound:        "Welcome back! I found your account. How can I help?",
		clientFoundNamed:   "Welcome back, %s! I found your account. How can I help?",
		clientNotFound:     "I couldn't find an account for this number. I can register you as a new customer. May I have your full name?",
		clientCreated:      "You're registered. Welcome to Toyota.",
		clientCreatedNamed: "You're registered, %s. Welcome to Toyota.",

		noVehicles:        "I couldn't find any vehicles registered to you.",
		vehicleCount:      "You have %d vehicles registered with us.",
		vehicleList:       "You have %d vehicles registered with us: %s.",
		vehicleImagesSent: "I've sent you their pictures on WhatsApp.",

		imageSent:         "I've sent you the picture on WhatsApp.",
		imageSentNamed:    "I've sent you a picture of the %s on WhatsApp.",
		locationSent:      "I've sent you the location on WhatsApp.",
		locationSentNamed: "I've sent you the location of %s on WhatsApp.",

		ticketCreated:      "Your service request is open. We'll be in touch soon.",
		ticketCreatedID:    "Your service request %s is open. We'll be in touch soon.",
		noTickets:          "You don't have any service requests right now.",
		ticketCount:        "You have %d service requests.",
		ticketLine:         "%s: %s.",
		ticketLineUntitled: "One request is %s.",
	},
}

var fieldNames = map[language.Language]map[string]string{
	language.Arabic: {
		"first_name":     "الاسم الأول",
		"last_name":      "اسم العائلة",
		"email":          "البريد الإلكتروني",
		"address":        "العنوان",
		"phone_number":   "رقم الهاتف",
		"car_name":       "اسم السيارة",
		"location_type":  "نوع الفرع",
		"vehicle_id":     "السيارة",
		"title":          "عنوان الطلب",
		"description":    "وصف الطلب",
		"preferred_date": "التاريخ المفضل",
		"client_id":      "رقم العميل",
		"send_images":    "إرسال الصور",
	},
	language.English: {
		"first_name":     "first name",
		"last_name":      "last name",
		"email":          "email address",
		"address":        "address",
		"phone_number":   "phone number",
		"car_name":       "car name",
		"location_type":  "branch type",
		"vehicle_id":     "vehicle",
		"title":          "request title",
		"description":    "request description",
		"preferred_date": "preferred date",
		"client_id":      "customer number",
		"send_images":    "image preference",
	},
}

var statusNames = map[language.Language]map[string]string{
	language.Arabic: {
		"pending":     "قيد الانتظار",
		"open":        "مفتوح",
		"in_progress": "قيد التنفيذ",
		"completed":   "مكتمل",
		"closed":      "مغلق",
		"cancelled":   "ملغي",
		"unknown":     "قيد المتابعة",
	},
	language.English: {
		"pending":     "pending",
		"open":        "open",
		"in_progress": "in progress",
		"completed":   "completed",
		"closed":      "closed",
		"cancelled":   "cancelled",
		"unknown":     "being followed up",
	},
}

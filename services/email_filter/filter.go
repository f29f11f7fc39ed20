package email_filter

import (
	"net/textproto"
	"strings"
)

var bounceSubjects = []string{
	"mail delivery failure",
	"undelivered mail returned to sender",
	"delivery status notification",
	"undeliverable",
	"undelivered",
	"delivery failure",
	"failure notice",
	"returned mail",
	"returned to sender",
}

// IsAutomated reports whether an inbound message was generated by a machine
// (bounce, autoresponder, mail loop) and must not open or update a ticket.
func IsAutomated(header textproto.MIMEHeader, from, subject string) (bool, string) {
	if bounce, reason := isBounceNotification(header, from, subject); bounce {
		return true, reason
	}
	return isAutoresponder(header)
}

func isAutoresponder(header textproto.MIMEHeader) (bool, string) {
	autoSubmitted := strings.ToLower(strings.TrimSpace(header.Get("Auto-Submitted")))
	precedence := strings.TrimSpace(header.Get("Precedence"))
	switch {
	case autoSubmitted != "" && autoSubmitted != "no":
		return true, "AUTO-SUBMITTED: " + autoSubmitted
	case header.Get("X-Autoreply") != "":
		return true, "X-AUTOREPLY header present"
	case header.Get("X-Autorespond") != "", header.Get("X-Autoresponse") != "":
		return true, "X-AUTORESPONSE header present"
	case header.Get("X-Loop") != "":
		return true, "X-LOOP header present"
	case strings.EqualFold(precedence, "auto_reply"):
		return true, "PRECEDENCE: AUTO_REPLY header present"
	default:
		return false, ""
	}
}

func isBounceNotification(header textproto.MIMEHeader, from, subject string) (bool, string) {
	switch {
	case header.Get("X-Failed-Recipients") != "":
		return true, "X-FAILED-RECIPIENTS header present"
	case strings.EqualFold(header.Get("Content-Description"), "delivery report"):
		return true, "CONTENT-DESCRIPTION: DELIVERY REPORT header present"
	case hasBounceKeywords(header.Get("Return-Path")):
		return true, "RETURN-PATH contains bounce keywords"
	case hasBounceKeywords(from):
		return true, "FROM contains bounce keywords"
	case isBounceSubject(subject):
		return true, "SUBJECT contains bounce keywords"
	default:
		return false, ""
	}
}

func hasBounceKeywords(str string) bool {
	return strings.Contains(strings.ToLower(str), "mailer-daemon")
}

func isBounceSubject(subject string) bool {
	subject = strings.ToLower(subject)
	for _, phrase := range bounceSubjects {
		if strings.Contains(subject, phrase) {
			return true
		}
	}
	return false
}

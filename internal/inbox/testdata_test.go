package inbox

import "strings"

// crlf converts a readable fixture into wire line endings.
func crlf(s string) string {
	return strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n")
}

var gmailDSN = crlf(`
From: Mail Delivery Subsystem <mailer-daemon@googlemail.com>
To: bot@clientflow.io
Subject: Delivery Status Notification (Failure)
Message-ID: <dsn-1@mx.google.com>
MIME-Version: 1.0
Content-Type: multipart/report; report-type=delivery-status; boundary="BOUND"

--BOUND
Content-Type: multipart/alternative; boundary="ALT"

--ALT
Content-Type: text/plain; charset="UTF-8"

Address not found

Your message wasn't delivered to Ghost@Example.com because the address couldn't be found.

--ALT
Content-Type: text/html; charset="UTF-8"

<html><body><p>Address not found</p></body></html>
--ALT--

--BOUND
Content-Type: message/delivery-status

Reporting-MTA: dns; googlemail.com
Final-Recipient: rfc822; ghost@example.com
Action: failed
Status: 5.1.1

--BOUND
Content-Type: text/plain; charset="ISO-8859-1"
Content-Transfer-Encoding: quoted-printable

The response was: 550 5.1.1 The email account does not exist caf=E9

--BOUND--
`)

var htmlOnlyBounce = crlf(`
From: postmaster@mail.example.net
To: bot@clientflow.io
Subject: Undeliverable: ClientFlow Email Verification
MIME-Version: 1.0
Content-Type: text/html; charset="UTF-8"

<html><head><style>p{color:red}</style></head><body>
<p>Delivery has failed to these recipients: <b>nobody@example.net</b></p>
<p>No such user here.</p>
</body></html>
`)

var plainMessage = crlf(`
From: friend@example.org
To: bot@clientflow.io
Subject: hello
Content-Type: text/plain; charset=us-ascii

just saying hi
`)

// Package mail provides authcore.Mailer implementations: LogMailer for
// development, which logs the links instead of sending them, and SMTPMailer
// for real delivery.
package mail

// Package extract holds the text and DOM heuristics spiders share: Australian
// phone numbers, emails, addresses, category scoring, feature lists, business
// names and descriptions. Every function is pure; spiders feed it goquery
// documents or plain text.
package extract

package telegram

import "gopkg.in/telebot.v3"

// Client delivers text to the clinic's Telegram chat. The notification center
// depends on this instead of the bot library.
type Client interface {
	SendMessage(chatID int64, text string, options *telebot.SendOptions) error
}

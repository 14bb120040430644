// Package keyboard builds inline keyboards whose callback_data is sent
// verbatim. Buttons are constructed as raw tele.InlineButton values so no
// unique prefix is injected into the payload.
package keyboard

import tele "gopkg.in/telebot.v4"

// Btn is an inline button with literal callback data.
type Btn struct {
	Text string
	Data string
}

// Grid builds an inline keyboard from rows of buttons.
func Grid(rows ...[]Btn) *tele.ReplyMarkup {
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, b := range row {
			r[j] = tele.InlineButton{Text: b.Text, Data: b.Data}
		}
		inline[i] = r
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}

// Column places each button on its own row.
func Column(buttons ...Btn) *tele.ReplyMarkup {
	rows := make([][]Btn, len(buttons))
	for i, b := range buttons {
		rows[i] = []Btn{b}
	}
	return Grid(rows...)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/do"
	tele "gopkg.in/telebot.v3"

	"pulsepay/internal/chain"
	"pulsepay/internal/models"
	"pulsepay/internal/pkg/limiter"
	"pulsepay/internal/qr"
	"pulsepay/internal/relay"
	"pulsepay/internal/services"
)

const (
	textStart = `📡 Welcome to the offline relay bot!

Sign a transaction in your wallet while offline, show the QR code it produces, and send me a photo of it. I will decode it, show you what it does, and broadcast it once you approve.

Send /help for the full command list.`

	textHelp = `Commands:

/qrcode — how to produce a relay QR code
/balance <address> — native coin balance of an account
/history — your recent broadcasts
/cancel — discard the transaction awaiting your approval

To relay a transaction, just send me a photo of the QR code.`

	textQRCode = `Open the wallet dashboard, build and sign your transaction there, and it will display a QR code holding the signed payload. Photograph that code and send it to me here.

The code carries a finished signature. I never see your keys and cannot alter what you signed.`
)

var (
	btnApprove = tele.Btn{Unique: "relay_approve"}
	btnCancel  = tele.Btn{Unique: "relay_cancel"}
)

type relayBot struct {
	bot       *tele.Bot
	container *do.Injector
	network   string
}

func (rb *relayBot) commandStart(c tele.Context) error {
	return c.Send(textStart)
}

func (rb *relayBot) commandHelp(c tele.Context) error {
	return c.Send(textHelp)
}

func (rb *relayBot) commandQRCode(c tele.Context) error {
	return c.Send(textQRCode)
}

func (rb *relayBot) commandBalance(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /balance <address>")
	}

	serviceWallet, err := do.Invoke[*services.ServiceWallet](rb.container)
	if err != nil {
		return c.Send(userMessage(err))
	}

	balance, err := serviceWallet.Balance(context.Background(), args[0])
	if err != nil {
		return c.Send(userMessage(err))
	}

	return c.Send(fmt.Sprintf("💰 %s APT", balance.APT))
}

func (rb *relayBot) commandHistory(c tele.Context) error {
	serviceRelay, err := do.Invoke[*services.ServiceRelay](rb.container)
	if err != nil {
		return c.Send(userMessage(err))
	}

	logs, err := serviceRelay.History(context.Background(), c.Sender().ID)
	if err != nil {
		return c.Send(userMessage(err))
	}
	if len(logs) == 0 {
		return c.Send("No broadcasts yet.")
	}

	var sb strings.Builder
	sb.WriteString("<b>Recent broadcasts</b>\n\n")
	for _, row := range logs {
		sb.WriteString(fmt.Sprintf("%s <code>%s</code>\n%s\n\n",
			statusIcon(row.Status), shortHash(row.TxHash), rb.explorerURL(row.TxHash)))
	}

	return c.Send(sb.String(), &tele.SendOptions{ParseMode: tele.ModeHTML})
}

func (rb *relayBot) commandCancel(c tele.Context) error {
	serviceRelay, err := do.Invoke[*services.ServiceRelay](rb.container)
	if err != nil {
		return c.Send(userMessage(err))
	}

	session, err := serviceRelay.Cancel(context.Background(), c.Sender().ID)
	if err != nil {
		return c.Send(userMessage(err))
	}
	if session == nil {
		return c.Send("Nothing to cancel.")
	}
	return c.Send("🚫 Discarded. The transaction was not broadcast.")
}

func (rb *relayBot) handlePhoto(c tele.Context) error {
	photo := c.Message().Photo
	if photo == nil {
		return nil
	}
	return rb.relayFile(c, photo.FileID)
}

// handleDocument accepts QR images sent as uncompressed files, which keep
// more detail than Telegram's photo recompression.
func (rb *relayBot) handleDocument(c tele.Context) error {
	doc := c.Message().Document
	if doc == nil || !strings.HasPrefix(doc.MIME, "image/") {
		return nil
	}
	return rb.relayFile(c, doc.FileID)
}

func (rb *relayBot) relayFile(c tele.Context, fileID string) error {
	ctx := context.Background()

	serviceBot, err := do.Invoke[*services.Bot](rb.container)
	if err != nil {
		return c.Send(userMessage(err))
	}
	serviceRelay, err := do.Invoke[*services.ServiceRelay](rb.container)
	if err != nil {
		return c.Send(userMessage(err))
	}

	file, err := rb.bot.FileByID(fileID)
	if err != nil {
		return c.Send(userMessage(err))
	}
	img, err := serviceBot.FetchFile(serviceBot.FileURL(file.FilePath))
	if err != nil {
		return c.Send(userMessage(err))
	}

	session, err := serviceRelay.HandleImage(ctx, c.Sender().ID, img)
	if err != nil {
		return c.Send(userMessage(err))
	}

	markup := &tele.ReplyMarkup{}
	approve := markup.Data("✅ Approve", btnApprove.Unique, session.ApprovalID)
	reject := markup.Data("❌ Reject", btnCancel.Unique, session.ApprovalID)
	markup.Inline(markup.Row(approve, reject))

	return c.Send(summaryText(session.Summary), &tele.SendOptions{
		ParseMode:   tele.ModeHTML,
		ReplyMarkup: markup,
	})
}

func (rb *relayBot) handleApprove(c tele.Context) error {
	serviceRelay, err := do.Invoke[*services.ServiceRelay](rb.container)
	if err != nil {
		return c.Send(userMessage(err))
	}

	if err := c.Edit("⏳ Broadcasting..."); err != nil {
		return err
	}

	outcome, err := serviceRelay.Approve(context.Background(), c.Sender().ID, c.Data())
	if err != nil {
		return c.Send(userMessage(err))
	}

	switch {
	case outcome.Unknown && outcome.Hash != "":
		return c.Send(fmt.Sprintf(
			"⚠️ The transaction was broadcast but its outcome could not be confirmed in time. Do not resend it blindly; check the explorer first.\n%s",
			rb.explorerURL(outcome.Hash)))
	case outcome.Unknown:
		return c.Send("⚠️ The broadcast timed out before the network answered. It may still have gone through; check your account on the explorer before resending.")
	case outcome.State == models.StateSucceeded:
		return c.Send(fmt.Sprintf("✅ Confirmed on chain.\n%s", rb.explorerURL(outcome.Hash)))
	default:
		detail := outcome.VMStatus
		if detail == "" {
			detail = "the network rejected it"
		}
		return c.Send(fmt.Sprintf("❌ The transaction failed: %s\n%s", detail, rb.explorerURL(outcome.Hash)))
	}
}

func (rb *relayBot) handleReject(c tele.Context) error {
	serviceRelay, err := do.Invoke[*services.ServiceRelay](rb.container)
	if err != nil {
		return c.Send(userMessage(err))
	}

	if _, err := serviceRelay.Cancel(context.Background(), c.Sender().ID); err != nil {
		return c.Send(userMessage(err))
	}

	if err := c.Edit("🚫 Rejected."); err != nil {
		return err
	}
	return c.Send("Discarded. The transaction was not broadcast.")
}

func (rb *relayBot) explorerURL(hash string) string {
	if hash == "" {
		return ""
	}
	network := rb.network
	if network == "" {
		network = "mainnet"
	}
	return fmt.Sprintf("https://explorer.aptoslabs.com/txn/%s?network=%s", hash, network)
}

func summaryText(s models.SessionSummary) string {
	var sb strings.Builder
	sb.WriteString("<b>Transaction to broadcast</b>\n\n")
	if s.Kind == string(models.SummaryTransfer) {
		sb.WriteString(fmt.Sprintf("Transfer <b>%s APT</b>\n", s.Amount))
		sb.WriteString(fmt.Sprintf("From: <code>%s</code>\n", s.Sender))
		sb.WriteString(fmt.Sprintf("To: <code>%s</code>\n", s.Recipient))
	} else {
		sb.WriteString(fmt.Sprintf("Call <code>%s</code>\n", s.FunctionID))
		sb.WriteString(fmt.Sprintf("From: <code>%s</code>\n", s.Sender))
	}
	sb.WriteString("\nApprove to broadcast, or reject to discard.")
	return sb.String()
}

func statusIcon(status string) string {
	switch status {
	case models.RelayStatusSuccess:
		return "✅"
	case models.RelayStatusFailure:
		return "❌"
	case models.RelayStatusUnknown:
		return "⚠️"
	default:
		return "⏳"
	}
}

func shortHash(hash string) string {
	if len(hash) <= 14 {
		return hash
	}
	return hash[:8] + "…" + hash[len(hash)-6:]
}

// userMessage translates pipeline errors into plain guidance. Anything not
// recognized gets a generic apology rather than an internal detail dump.
func userMessage(err error) string {
	var structural *relay.StructuralError
	switch {
	case errors.Is(err, qr.ErrCodeNotFound):
		return "I could not find a QR code in that image. Try a sharper, well-lit photo, or send the image as a file."
	case errors.Is(err, qr.ErrCodeAmbiguous):
		return "I could not read that QR code clearly. Try a sharper photo."
	case errors.Is(err, relay.ErrMalformedToken),
		errors.Is(err, relay.ErrDecompressionFailure),
		errors.Is(err, relay.ErrParseFailure),
		errors.Is(err, relay.ErrSchemaMismatch):
		return "That QR code does not hold a relay payload I understand. Make sure it came from the wallet dashboard."
	case errors.As(err, &structural):
		return "The payload is incomplete: " + structural.Reason + ". Rebuild the QR code in your wallet."
	case errors.Is(err, relay.ErrExtractionFailed):
		return "I decoded the payload but could not work out what it does, so I will not broadcast it."
	case errors.Is(err, limiter.ErrRateLimited):
		return "Too many attempts. Wait a minute and try again."
	case errors.Is(err, services.ErrNoPendingApproval):
		return "There is no transaction awaiting approval. Send a QR code photo first."
	case errors.Is(err, services.ErrStaleApproval):
		return "These buttons belong to an older transaction. Send the QR code again."
	case errors.Is(err, services.ErrRelayLocked):
		return "A broadcast is already in progress. Wait for it to finish."
	case errors.Is(err, chain.ErrSubmissionRejected):
		return "The network rejected the transaction. It may be expired or already executed; rebuild it in your wallet."
	case errors.Is(err, chain.ErrNetworkUnavailable):
		return "The blockchain network is unreachable right now. Your transaction was not broadcast; try again shortly."
	default:
		return "Something went wrong. Please try again."
	}
}

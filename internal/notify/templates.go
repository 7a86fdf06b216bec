package notify

import (
	"bytes"
	htmltemplate "html/template"
	"sort"
	texttemplate "text/template"

	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
)

type emailTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

const layoutOpen = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`
const layoutClose = `<p>Team {{.brand}}</p></div>`

var emailTemplates = map[domain.Kind]emailTemplate{
	domain.KindWelcome: mustEmail(
		`Welcome to {{.brand}}!`,
		`<h1>Welcome to {{.brand}}!</h1>
<p>Hi {{or .user_name "there"}},</p>
<p>Thanks for joining. Shop through {{.brand}} and earn cashback on every purchase.</p>
{{with .verification_url}}<p><a href="{{.}}">Verify your email</a> (link expires in 24 hours)</p>{{end}}`),

	domain.KindOTP: mustEmail(
		`Your OTP: {{or .otp "XXXXXX"}}`,
		`<h1>Your OTP Code</h1>
<p>Hi {{or .user_name "there"}},</p>
<p>Your one-time password is <strong>{{or .otp "XXXXXX"}}</strong>. It is valid for 10 minutes.</p>
<p>Do not share this code with anyone.</p>`),

	domain.KindOrderConfirmation: mustEmail(
		`Order Confirmed - {{or .order_number "XXXXXX"}}`,
		`<h1>Order Confirmed</h1>
<p>Hi {{or .user_name "there"}},</p>
<p>Your order <strong>{{or .order_number "XXXXXX"}}</strong> has been confirmed.</p>
<p>Total: &#8377;{{or .total_amount "0"}} &middot; Items: {{or .items_count 1}}</p>
{{with .order_url}}<p><a href="{{.}}">View order and vouchers</a></p>{{end}}`),

	domain.KindCashbackConfirmed: mustEmail(
		`Cashback Credited to Your Wallet`,
		`<h1>Cashback Credited</h1>
<p>Hi {{or .user_name "there"}},</p>
<p>&#8377;{{or .amount "0"}} from {{or .merchant_name "your purchase"}} has been credited to your wallet.</p>
<p>New balance: &#8377;{{or .wallet_balance "0"}}</p>`),

	domain.KindWithdrawalRequested: mustEmail(
		`Withdrawal Request Received`,
		`<h1>Withdrawal Requested</h1>
<p>Hi {{or .user_name "there"}},</p>
<p>We received your request to withdraw &#8377;{{or .amount "0"}} via {{or .method "UPI"}}.</p>
<p>Remaining balance: &#8377;{{or .wallet_balance "0"}}</p>`),

	domain.KindWithdrawalProcessed: mustEmail(
		`Withdrawal Processed Successfully`,
		`<h1>Withdrawal Processed</h1>
<p>Hi {{or .user_name "there"}},</p>
<p>Your withdrawal of &#8377;{{or .amount "0"}} via {{or .method "UPI"}} to {{or .account "your account"}} has been processed.</p>
<p>The amount will reach your account within 24-48 hours.</p>`),

	domain.KindPasswordReset: mustEmail(
		`Reset Your Password`,
		`<h1>Reset Your Password</h1>
<p>Hi {{or .user_name "there"}},</p>
<p><a href="{{or .reset_url "#"}}">Choose a new password</a>. The link expires in 30 minutes.</p>
<p>If you did not request this, ignore this email.</p>`),

	domain.KindGiftCardDelivery: mustEmail(
		`Your Gift Card Code is Ready`,
		`<h1>Your Gift Card</h1>
<p>Hi {{or .user_name "there"}},</p>
<p>Code: <strong>{{or .code "XXXX-XXXX"}}</strong> &middot; Value: &#8377;{{or .value "0"}}</p>
{{with .expires_at}}<p>Expires on {{.}}.</p>{{end}}
<p>Keep this code secure. Treat it like cash.</p>`),
}

var smsTemplates = map[domain.Kind]*texttemplate.Template{
	domain.KindOTP: mustText(
		`Your OTP for {{.brand}} is {{or .otp "XXXXXX"}}. Valid for 10 minutes. Do not share with anyone.`),
	domain.KindOrderConfirmation: mustText(
		`Order {{or .order_number "XXXXXX"}} confirmed! Amount: Rs.{{or .total_amount "0"}}. Your voucher codes are ready.`),
	domain.KindCashbackCredited: mustText(
		`Rs.{{or .amount "0"}} cashback credited to your {{.brand}} wallet from {{or .merchant_name "merchant"}}. Balance: Rs.{{or .wallet_balance "0"}}`),
	domain.KindWithdrawalRequested: mustText(
		`Withdrawal request of Rs.{{or .amount "0"}} received. We will notify you once it is processed.`),
	domain.KindWithdrawalProcessed: mustText(
		`Withdrawal of Rs.{{or .amount "0"}} processed successfully. It will be credited within 24 hours.`),
}

func mustEmail(subject, body string) emailTemplate {
	return emailTemplate{
		subject: mustText(subject),
		body:    htmltemplate.Must(htmltemplate.New("body").Parse(layoutOpen + body + layoutClose)),
	}
}

func mustText(src string) *texttemplate.Template {
	return texttemplate.Must(texttemplate.New("text").Parse(src))
}

// EmailKinds lists the email kinds with a template, sorted
func EmailKinds() []domain.Kind {
	kinds := make([]domain.Kind, 0, len(emailTemplates))
	for k := range emailTemplates {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// SMSKinds lists the SMS kinds with a template, sorted
func SMSKinds() []domain.Kind {
	kinds := make([]domain.Kind, 0, len(smsTemplates))
	for k := range smsTemplates {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func renderEmail(kind domain.Kind, data map[string]interface{}) (string, string, error) {
	tpl, ok := emailTemplates[kind]
	if !ok {
		return "", "", domain.ErrUnknownKind
	}

	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return "", "", err
	}
	if err := tpl.body.Execute(&body, data); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}

func renderSMS(kind domain.Kind, data map[string]interface{}) (string, error) {
	tpl, ok := smsTemplates[kind]
	if !ok {
		return "", domain.ErrUnknownKind
	}

	var text bytes.Buffer
	if err := tpl.Execute(&text, data); err != nil {
		return "", err
	}
	return text.String(), nil
}

package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/ruralpay/ledger/internal/models"
)

const SettlementQueue = "settlement_queue"

// SettlementPublisher hands executed EFT transfers to the outbound clearing
// channel. Publishing happens after commit and never affects the transfer.
type SettlementPublisher interface {
	Publish(ctx context.Context, transfer *models.Transfer, debtor *models.Account) error
}

// BankIdentity is this institution's identity on outbound messages.
type BankIdentity struct {
	BIC            string
	Name           string
	ClearingMember string
}

// ISO20022Service renders EFT transfers as pacs.008.001.08 credit transfers and
// queues them on Redis for the clearing gateway.
type ISO20022Service struct {
	redis *redis.Client
	queue string
	bank  BankIdentity
	now   func() time.Time
	newID func() string
}

func NewISO20022Service(rdb *redis.Client, bank BankIdentity) *ISO20022Service {
	return &ISO20022Service{
		redis: rdb,
		queue: SettlementQueue,
		bank:  bank,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

func (iso *ISO20022Service) Publish(ctx context.Context, transfer *models.Transfer, debtor *models.Account) error {
	doc, err := iso.CreatePacs008(transfer, debtor)
	if err != nil {
		return err
	}

	xmlData, err := iso.ConvertToXML(doc)
	if err != nil {
		return err
	}

	if err := iso.redis.RPush(ctx, iso.queue, xmlData).Err(); err != nil {
		return fmt.Errorf("queue transfer %s for settlement: %w", transfer.ID, err)
	}
	return nil
}

// CreatePacs008 creates a pacs.008 FIToFICustomerCreditTransfer message
func (iso *ISO20022Service) CreatePacs008(transfer *models.Transfer, debtor *models.Account) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if transfer.ExternalIBAN == nil {
		return nil, fmt.Errorf("transfer %s has no external destination", transfer.ID)
	}
	creditorIBAN := *transfer.ExternalIBAN
	endToEndID := truncate(strings.ReplaceAll(transfer.ID, "-", ""), 35)

	msgId := iso.newID()
	creDtTm := iso.now().UTC()
	settlementDate := creDtTm
	amount := transfer.Amount.Amount.InexactFloat64()
	currency := string(transfer.Amount.Currency)

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(endToEndID)}[0],
					EndToEndId: common.Max35Text(endToEndID),
					TxId:       &[]common.Max35Text{common.Max35Text(endToEndID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt:       iso.debtorAgent(),
				Dbtr:          pacs_v08.PartyIdentification135{},
				DbtrAcct:      ibanAccount(debtor.IBAN),
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(bankCodeFromIBAN(creditorIBAN)),
						},
					},
				},
				Cdtr:     pacs_v08.PartyIdentification135{},
				CdtrAcct: ibanAccount(creditorIBAN),
			},
		},
	}
	if transfer.Description != "" {
		doc.CdtTrfTxInf[0].RmtInf = &pacs_v08.RemittanceInformation16{
			Ustrd: []common.Max140Text{common.Max140Text(truncate(transfer.Description, 140))},
		}
	}

	return doc, nil
}

// Account holders are not modelled here, so parties are identified by account.
func ibanAccount(iban string) *pacs_v08.CashAccount38 {
	id := common.IBAN2007Identifier(iban)
	return &pacs_v08.CashAccount38{
		Id: pacs_v08.AccountIdentification4Choice{IBAN: &id},
	}
}

func (iso *ISO20022Service) debtorAgent() pacs_v08.BranchAndFinancialInstitutionIdentification6 {
	agent := pacs_v08.FinancialInstitutionIdentification18{
		BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(iso.bank.BIC)}[0],
	}
	if iso.bank.Name != "" {
		agent.Nm = &[]common.Max140Text{common.Max140Text(iso.bank.Name)}[0]
	}
	if iso.bank.ClearingMember != "" {
		agent.ClrSysMmbId = &pacs_v08.ClearingSystemMemberIdentification2{
			MmbId: common.Max35Text(iso.bank.ClearingMember),
		}
	}
	return pacs_v08.BranchAndFinancialInstitutionIdentification6{FinInstnId: agent}
}

// ConvertToXML converts ISO20022 document to XML string
func (iso *ISO20022Service) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

// bankCodeFromIBAN extracts the national bank code. Turkish IBANs carry a
// five digit code after the check digits; other countries fall back to the
// country code.
func bankCodeFromIBAN(iban string) string {
	if len(iban) >= 9 && iban[:2] == "TR" {
		return iban[4:9]
	}
	if len(iban) >= 2 {
		return iban[:2]
	}
	return iban
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

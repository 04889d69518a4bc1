package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"strings"

	"gasstation/core/state"
	"gasstation/core/types"
	"gasstation/crypto"
	"gasstation/native/admin"
	"gasstation/native/forwarder"
	"gasstation/native/sponsorship"
)

func decodeParams(req *rpcRequest, out interface{}) *handlerError {
	if len(req.Params) != 1 {
		return errParams("expected a single parameter object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return errParams("malformed parameter object: " + err.Error())
	}
	return nil
}

func parseAccount(value string) ([]byte, *handlerError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return nil, errParams("invalid account address: " + err.Error())
	}
	return addr.Bytes(), nil
}

func parseHexAddr(value string) ([]byte, *handlerError) {
	raw, herr := parseHexBytes(value)
	if herr != nil {
		return nil, herr
	}
	if len(raw) != 20 {
		return nil, errParams("address must be 20 bytes")
	}
	return raw, nil
}

func parseHexBytes(value string) ([]byte, *handlerError) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, errParams("invalid hex value: " + err.Error())
	}
	return raw, nil
}

func parseAmount(value string) (*big.Int, *handlerError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errParams("amount must be a base-10 integer")
	}
	return amount, nil
}

// forwardRequestParam is the wire form of a signed request. Accounts are
// bech32, the target is raw hex, amounts are decimal strings, payload and
// signature are 0x-prefixed hex.
type forwardRequestParam struct {
	Signer    string `json:"signer"`
	Target    string `json:"target"`
	Value     string `json:"value,omitempty"`
	FeeLimit  uint64 `json:"feeLimit"`
	Nonce     string `json:"nonce"`
	Payload   string `json:"payload,omitempty"`
	Signature string `json:"signature"`
}

func (p *forwardRequestParam) toRequest() (*types.ForwardRequest, []byte, *handlerError) {
	signer, herr := parseAccount(p.Signer)
	if herr != nil {
		return nil, nil, herr
	}
	target, herr := parseHexAddr(p.Target)
	if herr != nil {
		return nil, nil, herr
	}
	value, herr := parseAmount(p.Value)
	if herr != nil {
		return nil, nil, herr
	}
	nonce, herr := parseAmount(p.Nonce)
	if herr != nil {
		return nil, nil, herr
	}
	payload, herr := parseHexBytes(p.Payload)
	if herr != nil {
		return nil, nil, herr
	}
	sig, herr := parseHexBytes(p.Signature)
	if herr != nil {
		return nil, nil, herr
	}
	req := &types.ForwardRequest{
		Signer:   signer,
		Target:   target,
		Value:    value,
		FeeLimit: p.FeeLimit,
		Nonce:    nonce,
		Payload:  payload,
	}
	return req, sig, nil
}

type callResultJSON struct {
	Success    bool   `json:"success"`
	ReturnData string `json:"returnData"`
	Fee        string `json:"fee,omitempty"`
}

func (s *Server) handleExecute(req *rpcRequest, logger *slog.Logger) (interface{}, *handlerError) {
	var param forwardRequestParam
	if herr := decodeParams(req, &param); herr != nil {
		return nil, herr
	}
	fwdReq, sig, herr := param.toRequest()
	if herr != nil {
		return nil, herr
	}
	result, err := s.fwd.Execute(fwdReq, sig)
	if err != nil {
		return nil, errServer(err.Error())
	}
	logger.Info("request forwarded", "signer", param.Signer, "innerSuccess", result.Success)
	return callResultJSON{Success: result.Success, ReturnData: "0x" + hex.EncodeToString(result.Data)}, nil
}

func (s *Server) handleSponsor(req *rpcRequest, logger *slog.Logger) (interface{}, *handlerError) {
	var param forwardRequestParam
	if herr := decodeParams(req, &param); herr != nil {
		return nil, herr
	}
	fwdReq, sig, herr := param.toRequest()
	if herr != nil {
		return nil, herr
	}
	fee := s.sponsor.EstimateFee(fwdReq.FeeLimit)
	result, err := s.sponsor.Sponsor(fwdReq, sig)
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, sponsorship.ErrTargetNotSponsorable):
			reason = "target_not_sponsorable"
		case errors.Is(err, sponsorship.ErrInsufficientCredit):
			reason = "insufficient_credit"
		}
		s.metrics.ObserveRejection(req.Method, reason)
		return nil, errServer(err.Error())
	}
	feeFloat, _ := new(big.Float).SetInt(fee).Float64()
	s.metrics.AddFee(feeFloat)
	logger.Info("request sponsored", "signer", param.Signer, "fee", fee.String(), "innerSuccess", result.Success)
	return callResultJSON{
		Success:    result.Success,
		ReturnData: "0x" + hex.EncodeToString(result.Data),
		Fee:        fee.String(),
	}, nil
}

func (s *Server) handleVerify(req *rpcRequest) (interface{}, *handlerError) {
	var param forwardRequestParam
	if herr := decodeParams(req, &param); herr != nil {
		return nil, herr
	}
	fwdReq, sig, herr := param.toRequest()
	if herr != nil {
		return nil, herr
	}
	err := s.fwd.Verify(fwdReq, sig)
	switch {
	case err == nil:
		return map[string]bool{"valid": true}, nil
	case errors.Is(err, forwarder.ErrSignatureMismatch):
		return map[string]bool{"valid": false}, nil
	default:
		return nil, errServer(err.Error())
	}
}

func (s *Server) handleNonce(req *rpcRequest) (interface{}, *handlerError) {
	var param struct {
		Address string `json:"address"`
	}
	if herr := decodeParams(req, &param); herr != nil {
		return nil, herr
	}
	addr, herr := parseAccount(param.Address)
	if herr != nil {
		return nil, herr
	}
	nonce, err := s.fwd.CurrentNonce(addr)
	if err != nil {
		return nil, errServer(err.Error())
	}
	return map[string]string{"nonce": nonce.String()}, nil
}

func (s *Server) handleEstimateFee(req *rpcRequest) (interface{}, *handlerError) {
	var param struct {
		FeeLimit uint64 `json:"feeLimit"`
	}
	if herr := decodeParams(req, &param); herr != nil {
		return nil, herr
	}
	return map[string]string{"fee": s.sponsor.EstimateFee(param.FeeLimit).String()}, nil
}

func (s *Server) handleCanSponsor(req *rpcRequest) (interface{}, *handlerError) {
	var param struct {
		User     string `json:"user"`
		Target   string `json:"target"`
		FeeLimit uint64 `json:"feeLimit"`
	}
	if herr := decodeParams(req, &param); herr != nil {
		return nil, herr
	}
	user, herr := parseAccount(param.User)
	if herr != nil {
		return nil, herr
	}
	target, herr := parseHexAddr(param.Target)
	if herr != nil {
		return nil, herr
	}
	ok, err := s.sponsor.CanSponsor(user, target, param.FeeLimit)
	if err != nil {
		return nil, errServer(err.Error())
	}
	return map[string]bool{"sponsorable": ok}, nil
}

func (s *Server) handleCreditBalance(req *rpcRequest) (interface{}, *handlerError) {
	var param struct {
		Address string `json:"address"`
	}
	if herr := decodeParams(req, &param); herr != nil {
		return nil, herr
	}
	addr, herr := parseAccount(param.Address)
	if herr != nil {
		return nil, herr
	}
	balance, err := s.sponsor.CreditBalance(addr)
	if err != nil {
		return nil, errServer(err.Error())
	}
	mode, err := s.sponsor.FundingMode()
	if err != nil {
		return nil, errServer(err.Error())
	}
	return map[string]string{
		"balance":     balance.String(),
		"fundingMode": fundingModeString(mode),
	}, nil
}

func (s *Server) handleDomain() (interface{}, *handlerError) {
	domain := s.fwd.Domain()
	chainID := "0"
	if domain.ChainID != nil {
		chainID = domain.ChainID.String()
	}
	return map[string]string{
		"name":      domain.Name,
		"version":   domain.Version,
		"chainId":   chainID,
		"forwarder": "0x" + hex.EncodeToString(domain.Forwarder),
	}, nil
}

func (s *Server) handleDepositCredit(req *rpcRequest) (interface{}, *handlerError) {
	var param struct {
		Caller      string `json:"caller"`
		Beneficiary string `json:"beneficiary,omitempty"`
		Amount      string `json:"amount"`
	}
	if herr := decodeParams(req, &param); herr != nil {
		return nil, herr
	}
	caller, herr := parseAccount(param.Caller)
	if herr != nil {
		return nil, herr
	}
	var beneficiary []byte
	if strings.TrimSpace(param.Beneficiary) != "" {
		beneficiary, herr = parseAccount(param.Beneficiary)
		if herr != nil {
			return nil, herr
		}
	}
	amount, herr := parseAmount(param.Amount)
	if herr != nil {
		return nil, herr
	}
	if err := s.sponsor.DepositCredit(caller, beneficiary, amount); err != nil {
		return nil, errServer(err.Error())
	}
	account := caller
	if beneficiary != nil {
		account = beneficiary
	}
	balance, err := s.sponsor.CreditBalance(account)
	if err != nil {
		return nil, errServer(err.Error())
	}
	return map[string]string{"balance": balance.String()}, nil
}

func (s *Server) handleWithdrawCredit(req *rpcRequest) (interface{}, *handlerError) {
	var param struct {
		Caller string `json:"caller"`
		Amount string `json:"amount"`
	}
	if herr := decodeParams(req, &param); herr != nil {
		return nil, herr
	}
	caller, herr := parseAccount(param.Caller)
	if herr != nil {
		return nil, herr
	}
	amount, herr := parseAmount(param.Amount)
	if herr != nil {
		return nil, herr
	}
	if err := s.sponsor.WithdrawCredit(caller, amount); err != nil {
		return nil, errServer(err.Error())
	}
	balance, err := s.sponsor.CreditBalance(caller)
	if err != nil {
		return nil, errServer(err.Error())
	}
	return map[string]string{"balance": balance.String()}, nil
}

func (s *Server) handleDepositToken(req *rpcRequest) (interface{}, *handlerError) {
	var param struct {
		Caller string `json:"caller"`
		Token  string `json:"token"`
		Amount string `json:"amount"`
	}
	if herr := decodeParams(req, &param); herr != nil {
		return nil, herr
	}
	caller, herr := parseAccount(param.Caller)
	if herr != nil {
		return nil, herr
	}
	amount, herr := parseAmount(param.Amount)
	if herr != nil {
		return nil, herr
	}
	if err := s.sponsor.DepositToken(caller, param.Token, amount); err != nil {
		return nil, errServer(err.Error())
	}
	balance, err := s.sponsor.TokenBalance(caller, param.Token)
	if err != nil {
		return nil, errServer(err.Error())
	}
	return map[string]string{"balance": balance.String()}, nil
}

func (s *Server) handleWithdrawToken(req *rpcRequest) (interface{}, *handlerError) {
	var param struct {
		Caller string `json:"caller"`
		Token  string `json:"token"`
		Amount string `json:"amount"`
	}
	if herr := decodeParams(req, &param); herr != nil {
		return nil, herr
	}
	caller, herr := parseAccount(param.Caller)
	if herr != nil {
		return nil, herr
	}
	amount, herr := parseAmount(param.Amount)
	if herr != nil {
		return nil, herr
	}
	if err := s.sponsor.WithdrawToken(caller, param.Token, amount); err != nil {
		return nil, errServer(err.Error())
	}
	balance, err := s.sponsor.TokenBalance(caller, param.Token)
	if err != nil {
		return nil, errServer(err.Error())
	}
	return map[string]string{"balance": balance.String()}, nil
}

func (s *Server) dispatchAdmin(req *rpcRequest, c admin.Capability) (interface{}, *handlerError) {
	switch req.Method {
	case "admin_setTrustedSponsor":
		var param struct {
			Address string `json:"address"`
			Enabled bool   `json:"enabled"`
		}
		if herr := decodeParams(req, &param); herr != nil {
			return nil, herr
		}
		addr, herr := parseAccount(param.Address)
		if herr != nil {
			return nil, herr
		}
		var err error
		if param.Enabled {
			err = s.fwd.AddTrustedSponsor(c, addr)
		} else {
			err = s.fwd.RemoveTrustedSponsor(c, addr)
		}
		if err != nil {
			return nil, errServer(err.Error())
		}
		return map[string]bool{"ok": true}, nil

	case "admin_setSponsorableTarget":
		var param struct {
			Target  string `json:"target"`
			Enabled bool   `json:"enabled"`
		}
		if herr := decodeParams(req, &param); herr != nil {
			return nil, herr
		}
		target, herr := parseHexAddr(param.Target)
		if herr != nil {
			return nil, herr
		}
		if err := s.sponsor.SetSponsorableTarget(c, target, param.Enabled); err != nil {
			return nil, errServer(err.Error())
		}
		return map[string]bool{"ok": true}, nil

	case "admin_setEligibleToken":
		var param struct {
			Token   string `json:"token"`
			Enabled bool   `json:"enabled"`
		}
		if herr := decodeParams(req, &param); herr != nil {
			return nil, herr
		}
		if err := s.sponsor.SetEligibleToken(c, param.Token, param.Enabled); err != nil {
			return nil, errServer(err.Error())
		}
		return map[string]bool{"ok": true}, nil

	case "admin_setFundingMode":
		var param struct {
			Mode string `json:"mode"`
		}
		if herr := decodeParams(req, &param); herr != nil {
			return nil, herr
		}
		mode, herr := parseFundingMode(param.Mode)
		if herr != nil {
			return nil, herr
		}
		if err := s.sponsor.SetFundingMode(c, mode); err != nil {
			return nil, errServer(err.Error())
		}
		return map[string]bool{"ok": true}, nil

	case "admin_emergencyWithdraw":
		amount, err := s.sponsor.EmergencyWithdraw(c)
		if err != nil {
			return nil, errServer(err.Error())
		}
		return map[string]string{"amount": amount.String()}, nil

	default:
		return nil, &handlerError{rpcError: rpcError{Code: codeMethodNotFound, Message: "unknown admin method"}, status: 404}
	}
}

func fundingModeString(mode state.FundingMode) string {
	if mode == state.FundingModeOwnerPool {
		return "pool"
	}
	return "credit"
}

func parseFundingMode(value string) (state.FundingMode, *handlerError) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "credit", "user":
		return state.FundingModeUserCredit, nil
	case "pool", "owner":
		return state.FundingModeOwnerPool, nil
	default:
		return 0, errParams("mode must be \"credit\" or \"pool\"")
	}
}

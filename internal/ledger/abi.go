package ledger

import (
	"io"
	"strings"
)

// Minimal ABI for the credit vault contract — only the methods we call.
// Owner-scoped actions resolve the position from the transaction sender;
// keeper actions (executeGadStep, accrueInterest) take the position key.

func mustVaultABI() io.Reader {
	return strings.NewReader(`[
		{
			"name": "collaterals",
			"type": "function",
			"stateMutability": "view",
			"inputs":  [{"name": "positionKey", "type": "bytes32"}],
			"outputs": [
				{"name": "assets",  "type": "bytes32[]"},
				{"name": "amounts", "type": "uint64[]"}
			]
		},
		{
			"name": "debts",
			"type": "function",
			"stateMutability": "view",
			"inputs":  [{"name": "positionKey", "type": "bytes32"}],
			"outputs": [
				{"name": "assets",     "type": "bytes32[]"},
				{"name": "principals", "type": "uint64[]"},
				{"name": "interests",  "type": "uint64[]"}
			]
		},
		{
			"name": "reputation",
			"type": "function",
			"stateMutability": "view",
			"inputs":  [{"name": "positionKey", "type": "bytes32"}],
			"outputs": [
				{"name": "successfulRepayments", "type": "uint32"},
				{"name": "totalRepaidUsd",       "type": "uint64"},
				{"name": "gadEvents",            "type": "uint32"},
				{"name": "accountAgeDays",       "type": "uint32"}
			]
		},
		{
			"name": "positionMeta",
			"type": "function",
			"stateMutability": "view",
			"inputs":  [{"name": "positionKey", "type": "bytes32"}],
			"outputs": [
				{"name": "lastUpdate",   "type": "uint64"},
				{"name": "lastGadCrank", "type": "uint64"}
			]
		},
		{
			"name": "priceUsd",
			"type": "function",
			"stateMutability": "view",
			"inputs":  [{"name": "asset", "type": "bytes32"}],
			"outputs": [{"name": "price", "type": "uint64"}]
		},
		{
			"name": "deposit",
			"type": "function",
			"stateMutability": "payable",
			"inputs": [
				{"name": "asset",  "type": "bytes32"},
				{"name": "amount", "type": "uint64"}
			],
			"outputs": []
		},
		{
			"name": "withdraw",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "asset",  "type": "bytes32"},
				{"name": "amount", "type": "uint64"}
			],
			"outputs": []
		},
		{
			"name": "borrow",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "asset",  "type": "bytes32"},
				{"name": "amount", "type": "uint64"}
			],
			"outputs": []
		},
		{
			"name": "repay",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "asset",  "type": "bytes32"},
				{"name": "amount", "type": "uint64"}
			],
			"outputs": []
		},
		{
			"name": "configureAgent",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "dailyBorrowLimitUsd",   "type": "uint64"},
				{"name": "autoRepayEnabled",      "type": "bool"},
				{"name": "autoRepayThresholdBps", "type": "uint64"},
				{"name": "x402Enabled",           "type": "bool"},
				{"name": "x402DailyLimitUsd",     "type": "uint64"},
				{"name": "alertThresholdBps",     "type": "uint64"}
			],
			"outputs": []
		},
		{
			"name": "configureGad",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "enabled",            "type": "bool"},
				{"name": "startThresholdBps",  "type": "uint64"},
				{"name": "stepSizeBps",        "type": "uint64"},
				{"name": "minIntervalSeconds", "type": "uint64"}
			],
			"outputs": []
		},
		{
			"name": "executeGadStep",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "positionKey", "type": "bytes32"},
				{"name": "stepSizeBps", "type": "uint64"}
			],
			"outputs": []
		},
		{
			"name": "accrueInterest",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs":  [{"name": "positionKey", "type": "bytes32"}],
			"outputs": []
		},
		{
			"name": "pay",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "recipient", "type": "address"},
				{"name": "asset",     "type": "bytes32"},
				{"name": "amount",    "type": "uint64"},
				{"name": "paymentId", "type": "bytes32"},
				{"name": "autoBorrow", "type": "bool"}
			],
			"outputs": []
		}
	]`)
}

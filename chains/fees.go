package chains

import (
	"github.com/sip-protocol/sip-core/siperr"
)

// Fee planning for stealth deposits. The engine attaches a FeePlan to every
// quote whose adapter did not price execution itself, so adapters always
// receive a concrete compute/gas envelope for the submission they are about
// to build.

// Profile represents the fee optimization level.
type Profile string

const (
	ProfileEconomy  Profile = "economy"  // Lowest fees
	ProfileStandard Profile = "standard" // Balanced
	ProfileFast     Profile = "fast"     // Higher fees
	ProfileUrgent   Profile = "urgent"   // Maximum priority
)

// FeePlan is the destination-family fee envelope attached to a quote.
// Exactly one of EVM / Solana is set, matching the chain family.
type FeePlan struct {
	Chain  Tag
	Family Family
	EVM    *EVMGasConfig
	Solana *SolanaComputeBudget
}

// SolanaComputeBudget represents Solana compute budget configuration.
type SolanaComputeBudget struct {
	Units                    uint32
	MicrolamportsPerCU       uint64
	TotalPriorityFeeLamports uint64
}

// EVMGasConfig represents EVM gas configuration.
type EVMGasConfig struct {
	GasLimit             uint64
	MaxFeePerGas         uint64 // wei
	MaxPriorityFeePerGas uint64 // wei
}

const (
	solanaMaxCU              uint32 = 1_400_000
	solanaDefaultPriorityFee uint64 = 1_000
	solanaMinPriorityFee     uint64 = 100

	evmBaseGasPrice uint64 = 30_000_000_000 // 30 gwei
	oneGwei         uint64 = 1_000_000_000

	// Stealth transfers never reuse an address, so every Solana delivery
	// creates the one-time token account, and every EVM deposit pays for
	// the allowance plus the announcement event carrying the ephemeral
	// key and view tag.
	solanaBaseCU          uint32 = 5_300 // instruction overhead + compute budget ixs
	solanaKeyDerivationCU uint32 = 2_000
	solanaStealthXferCU   uint32 = 35_000 // transfer + fresh one-time ATA
	solanaAnnounceCU      uint32 = 500    // ephemeral-key memo

	evmBaseTxGas      uint64 = 21_000
	evmStealthXferGas uint64 = 65_000
	evmAllowanceGas   uint64 = 46_000
	evmAnnounceGas    uint64 = 80_000 // EIP-5564 announcement event
)

// profileWeights are the per-family priority multipliers. Solana priority
// fees swing harder than EVM tips.
var profileWeights = map[Profile]struct{ solana, evm float64 }{
	ProfileEconomy:  {0.5, 0.8},
	ProfileStandard: {1.0, 1.0},
	ProfileFast:     {2.0, 1.5},
	ProfileUrgent:   {5.0, 2.5},
}

func weightsFor(profile Profile) struct{ solana, evm float64 } {
	if w, ok := profileWeights[profile]; ok {
		return w
	}
	return profileWeights[ProfileStandard]
}

// PlanFees builds the fee envelope for delivering transferCount stealth
// transfers on a chain. includeAnnouncement adds the on-chain announcement
// (ephemeral key + view tag) recipients scan for. Families without a fee
// model get a plan with neither envelope set; the adapter prices those
// itself.
func PlanFees(tag Tag, profile Profile, transferCount int, includeAnnouncement bool) (*FeePlan, error) {
	chars, err := Get(tag)
	if err != nil {
		return nil, err
	}
	if transferCount < 1 {
		return nil, siperr.InvalidInput.Errorf("transfer count must be >= 1, got %d", transferCount)
	}

	plan := &FeePlan{Chain: tag, Family: chars.Family}
	switch chars.Family {
	case FamilySolana:
		budget := SolanaBudget(stealthTransferCU(transferCount, includeAnnouncement), profile, nil)
		plan.Solana = &budget
	case FamilyEVM:
		gas := EVMGas(stealthTransferGas(transferCount, includeAnnouncement), profile, nil)
		plan.EVM = &gas
	}
	return plan, nil
}

// stealthTransferCU estimates compute units for Solana stealth deliveries.
// Each transfer lands on a fresh one-time address, so the associated token
// account is always created.
func stealthTransferCU(transferCount int, includeAnnouncement bool) uint32 {
	cu := solanaBaseCU + solanaKeyDerivationCU
	cu += solanaStealthXferCU * uint32(transferCount)
	if includeAnnouncement {
		cu += solanaAnnounceCU
	}
	return cu
}

// stealthTransferGas estimates gas for EVM stealth deposits: base
// transaction, per-transfer cost, the token allowance for the deposit, and
// optionally the announcement event.
func stealthTransferGas(transferCount int, includeAnnouncement bool) uint64 {
	gas := evmBaseTxGas + evmAllowanceGas
	gas += evmStealthXferGas * uint64(transferCount)
	if includeAnnouncement {
		gas += evmAnnounceGas
	}
	return gas
}

// SolanaBudget turns an estimated compute-unit count into a budget: a 20%
// unit buffer capped at the network maximum, and a priority fee scaled by
// the profile weight over the observed median (or the default floor).
func SolanaBudget(estimatedCU uint32, profile Profile, currentMedianFee *uint64) SolanaComputeBudget {
	units := uint32(float64(estimatedCU) * 1.2)
	if units > solanaMaxCU {
		units = solanaMaxCU
	}

	baseFee := solanaDefaultPriorityFee
	if currentMedianFee != nil {
		baseFee = *currentMedianFee
	}
	microlamportsPerCU := uint64(float64(baseFee) * weightsFor(profile).solana)
	if microlamportsPerCU < solanaMinPriorityFee {
		microlamportsPerCU = solanaMinPriorityFee
	}

	return SolanaComputeBudget{
		Units:                    units,
		MicrolamportsPerCU:       microlamportsPerCU,
		TotalPriorityFeeLamports: (uint64(units) * microlamportsPerCU) / 1_000_000,
	}
}

// EVMGas turns an estimated gas amount into an EIP-1559 configuration: a
// 20% limit buffer, a tip scaled by the profile weight, and a max fee that
// survives one base-fee doubling.
func EVMGas(estimatedGas uint64, profile Profile, baseFee *uint64) EVMGasConfig {
	base := evmBaseGasPrice
	if baseFee != nil {
		base = *baseFee
	}
	tip := uint64(float64(2*oneGwei) * weightsFor(profile).evm)

	return EVMGasConfig{
		GasLimit:             uint64(float64(estimatedGas) * 1.2),
		MaxFeePerGas:         base*2 + tip,
		MaxPriorityFeePerGas: tip,
	}
}

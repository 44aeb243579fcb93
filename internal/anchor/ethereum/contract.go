package ethereum

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// contractABI is the subset of the certificate contract this client calls.
const contractABI = `[
  {"type":"function","name":"mintCertificate","stateMutability":"nonpayable",
   "inputs":[{"name":"recipient","type":"address"},{"name":"courseId","type":"string"},{"name":"courseName","type":"string"},{"name":"completionTimestamp","type":"uint256"},{"name":"metadataHash","type":"string"}],
   "outputs":[{"name":"tokenId","type":"uint256"}]},
  {"type":"function","name":"verifyCertificate","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"ipfsHash","type":"string"},{"name":"isValid","type":"bool"},{"name":"mintedAt","type":"uint256"},{"name":"courseId","type":"string"},{"name":"courseName","type":"string"},{"name":"completionDate","type":"uint256"}]},
  {"type":"function","name":"getCertificatesByOwner","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"hasRole","stateMutability":"view",
   "inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"CertificateMinted","anonymous":false,
   "inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"recipient","type":"address","indexed":true},{"name":"courseId","type":"string","indexed":false},{"name":"metadataHash","type":"string","indexed":false}]}
]`

const (
	methodMint        = "mintCertificate"
	methodVerify      = "verifyCertificate"
	methodByOwner     = "getCertificatesByOwner"
	methodHasRole     = "hasRole"
	methodTotalSupply = "totalSupply"
	eventMinted       = "CertificateMinted"
	minterRoleName    = "MINTER_ROLE"
)

var minterRole = [32]byte(crypto.Keccak256Hash([]byte(minterRoleName)))

// certificateMinted mirrors the CertificateMinted event for UnpackLog.
type certificateMinted struct {
	TokenId      *big.Int
	Recipient    common.Address
	CourseId     string
	MetadataHash string
}

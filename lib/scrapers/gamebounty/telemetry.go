package gamebounty

import (
	"gamedex-backend/lib/restyutil"

	"github.com/go-resty/resty/v2"
)

var restyInstrumentOutput restyutil.InstrumentOutput

func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}

func instrumentClient(client *resty.Client) {
	restyutil.InstrumentClient(client, func() restyutil.InstrumentOutput {
		return restyInstrumentOutput
	})
}

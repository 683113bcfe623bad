package feed

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

const ledgerXML = `<?xml version="1.0" encoding="UTF-16LE" standalone="no"?>
<d_vc_i_estado_cuenta>
 <d_vc_i_estado_cuenta_row>
  <d_vc_i_estado_cuenta_group1>
   <tipdoc>FC</tipdoc><numdoc>001002-00124369</numdoc><numtra>001002-00124369</numtra><valcob>2.36</valcob><fecemi>2026-01-10 00:00:00</fecemi>
  </d_vc_i_estado_cuenta_group1>
  <d_vc_i_estado_cuenta_group1>
   <tipdoc>AB</tipdoc><numdoc>001-2601000305</numdoc><numtra>001002-00124369</numtra><valcob>2.36</valcob>
   <fecemi>2026-01-19 00:00:00</fecemi><codcli>1712345678001</codcli><nomcli>PEREZ & ASOCIADOS</nomcli><concep>ABONO FACTURAS</concep>
  </d_vc_i_estado_cuenta_group1>
  <d_vc_i_estado_cuenta_group1>
   <tipdoc>AB</tipdoc><numdoc>001-2601000305</numdoc><numtra>001002-00124370</numtra><valcob>23.63</valcob>
   <fecemi>2026-01-19 00:00:00</fecemi><codcli>1712345678001</codcli><nomcli>PEREZ & ASOCIADOS</nomcli><concep>ABONO FACTURAS</concep>
  </d_vc_i_estado_cuenta_group1>
  <d_vc_i_estado_cuenta_group1>
   <tipdoc>NC</tipdoc><numdoc>001-2601000400</numdoc><numtra>001002-00124001</numtra><valcob>-10.00</valcob>
   <fecemi>20/01/2026</fecemi><concep>ANULACION POR ERROR</concep>
  </d_vc_i_estado_cuenta_group1>
  <d_vc_i_estado_cuenta_group1>
   <tipdoc>AB</tipdoc><numdoc></numdoc><numtra>001002-00124371</numtra><valcob>5.00</valcob><fecemi>2026-01-19</fecemi>
  </d_vc_i_estado_cuenta_group1>
 </d_vc_i_estado_cuenta_row>
</d_vc_i_estado_cuenta>`

const movementXML = `<?xml version="1.0" encoding="UTF-16LE"?>
<d_vc_i_diario_caja_detallado>
 <d_vc_i_diario_caja_detallado_group1>
  <encabezadofacturas_codapu>FC001002-00124216</encabezadofacturas_codapu>
  <encabezadopuntosventa_valefe>45.50</encabezadopuntosventa_valefe>
  <encabezadopuntosventa_totfac>45.50</encabezadopuntosventa_totfac>
  <encabezadopuntosventa_valche>0</encabezadopuntosventa_valche>
  <encabezadopuntosventa_valtar>0</encabezadopuntosventa_valtar>
  <encabezadofacturas_valdep>0</encabezadofacturas_valdep>
  <encabezadofacturas_conpag>E</encabezadofacturas_conpag>
  <encabezadopuntosventa_fecfac>2026-01-21 00:00:00</encabezadopuntosventa_fecfac>
  <encabezadofacturas_nomcxc>MARIA FERNANDA LOPEZ</encabezadofacturas_nomcxc>
  <clientes_codcli>0912345678</clientes_codcli>
  <vendedorescob_nomven>CAJA 1</vendedorescob_nomven>
 </d_vc_i_diario_caja_detallado_group1>
 <d_vc_i_diario_caja_detallado_group1>
  <encabezadofacturas_codapu>FC001002-00124217</encabezadofacturas_codapu>
  <encabezadopuntosventa_valefe>0</encabezadopuntosventa_valefe>
  <encabezadopuntosventa_totfac>80.00</encabezadopuntosventa_totfac>
  <encabezadofacturas_conpag>C</encabezadofacturas_conpag>
 </d_vc_i_diario_caja_detallado_group1>
 <d_vc_i_diario_caja_detallado_group1>
  <encabezadofacturas_codapu>RC001-0000012</encabezadofacturas_codapu>
  <encabezadopuntosventa_valefe>10</encabezadopuntosventa_valefe>
 </d_vc_i_diario_caja_detallado_group1>
 <d_vc_i_diario_caja_detallado_group1>
  <encabezadofacturas_codapu>FC001002-00124218</encabezadofacturas_codapu>
  <encabezadopuntosventa_valefe>abc</encabezadopuntosventa_valefe>
 </d_vc_i_diario_caja_detallado_group1>
</d_vc_i_diario_caja_detallado>`

const snapshotXML = `<?xml version="1.0" encoding="UTF-16LE"?>
<cxc_20260128>
 <cxc_20260128_row>
  <clientes_codcli>1712345678</clientes_codcli>
  <cxc_20260128_group1>
   <clientes_nomcli>JUAN PEREZ</clientes_nomcli>
   <tmpfacturas_numtra>001002-00123570</tmpfacturas_numtra>
   <tmpfacturas_valcob>113.00</tmpfacturas_valcob>
   <csaldo>0</csaldo>
   <tmpfacturas_fecemi>2025-12-01 00:00:00</tmpfacturas_fecemi>
   <tmpfacturas_fecven>31/12/2025</tmpfacturas_fecven>
   <tmpfacturas_tipdoc>FC</tmpfacturas_tipdoc>
  </cxc_20260128_group1>
  <cxc_20260128_group1>
   <clientes_nomcli>JUAN PEREZ</clientes_nomcli>
   <tmpfacturas_numtra>001002-00123571</tmpfacturas_numtra>
   <tmpfacturas_valcob>-50.00</tmpfacturas_valcob>
  </cxc_20260128_group1>
 </cxc_20260128_row>
 <cxc_20260128_row>
  <clientes_codcli>0998877665</clientes_codcli>
  <cxc_20260128_group1>
   <clientes_nomcli>COMERCIAL LOS ANDES</clientes_nomcli>
   <tmpfacturas_numtra>001002-00123572</tmpfacturas_numtra>
   <tmpfacturas_valcob>abc</tmpfacturas_valcob>
  </cxc_20260128_group1>
 </cxc_20260128_row>
</cxc_20260128>`

func utf16LE(t *testing.T, s string) []byte {
	t.Helper()
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)
	return out
}
